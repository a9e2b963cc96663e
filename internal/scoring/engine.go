package scoring

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/similarity"
)

// Candidate is the extracted view of a scanned APK that the engine needs.
// It is deliberately storage-neutral so both fresh extractions and persisted
// scan metadata can be rescored.
type Candidate struct {
	AppName     string
	PackageName string
	Permissions []string
	IconPHash   string
	CertSHA256  string
}

// Evaluation is the outcome of comparing one candidate against a brand set.
type Evaluation struct {
	// Signals holds one row per compared brand, in input order.
	Signals []domain.ScanSignal

	// Best points into Signals at the highest-scoring brand, nil when no
	// brands were compared.
	Best *domain.ScanSignal

	Score   float64
	Verdict domain.Verdict
}

// Engine evaluates candidates against the brand registry.
type Engine struct {
	cfg    *config.ScoringConfig
	logger *logrus.Logger
}

func NewEngine(cfg *config.ScoringConfig, logger *logrus.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Evaluate compares the candidate against every brand and keeps the highest
// combined score as the match. A signing-certificate match on any brand
// short-circuits: the APK is the official release of that brand and scores 0.
func (e *Engine) Evaluate(candidate *Candidate, brands []*domain.Brand) *Evaluation {
	eval := &Evaluation{
		Signals: make([]domain.ScanSignal, 0, len(brands)),
		Verdict: domain.VerdictUnknown,
	}

	now := time.Now().UTC()

	for _, brand := range brands {
		signal := e.compareBrand(candidate, brand)
		signal.CreatedAt = now
		eval.Signals = append(eval.Signals, signal)
	}

	for i := range eval.Signals {
		s := &eval.Signals[i]

		if s.CertMatch {
			// Signed with the brand's official certificate. Nothing else
			// matters: this is the genuine app.
			eval.Best = s
			eval.Score = 0.0
			eval.Verdict = domain.VerdictOfficial
			return eval
		}

		if eval.Best == nil || s.Score > eval.Best.Score {
			eval.Best = s
		}
	}

	if eval.Best != nil {
		eval.Score = eval.Best.Score
		eval.Verdict = e.verdictFor(eval.Score)
	}

	return eval
}

// compareBrand computes the individual risk signals for one brand. Name
// risk takes the stronger of the label and package-id similarities: clones
// typosquat either.
func (e *Engine) compareBrand(candidate *Candidate, brand *domain.Brand) domain.ScanSignal {
	signal := domain.ScanSignal{
		BrandID:   brand.ID,
		BrandName: brand.Name,
	}

	labelRisk := similarity.NameRisk(candidate.AppName, brand.Name)
	packageRisk := similarity.NameRisk(candidate.PackageName, brand.PackageName)
	signal.NameRisk = float64(max(labelRisk, packageRisk))

	iconRisk, err := similarity.IconRisk(candidate.IconPHash, brand.IconPHash)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"brand_id": brand.ID,
			"brand":    brand.Name,
		}).Warn("Icon comparison failed, signal dropped")
		iconRisk = 0.0
	}
	signal.IconRisk = iconRisk

	brandPerms := decodePermissions(brand.Permissions)
	signal.PermissionRisk = similarity.PermissionRisk(candidate.Permissions, brandPerms)

	signal.CertMatch = certMatches(candidate.CertSHA256, brand.CertSHA256)

	// Signals without inputs are excluded from the mean rather than
	// counted as zero risk.
	signals := []float64{signal.NameRisk}
	weights := []float64{e.cfg.NameWeight}
	if candidate.IconPHash != "" && brand.IconPHash != "" {
		signals = append(signals, signal.IconRisk)
		weights = append(weights, e.cfg.IconWeight)
	}
	if len(candidate.Permissions) > 0 && len(brandPerms) > 0 {
		signals = append(signals, signal.PermissionRisk)
		weights = append(weights, e.cfg.PermissionWeight)
	}

	signal.Score = Combine(signals, weights)
	return signal
}

// decodePermissions parses the brand's stored JSON permission array.
// Malformed data degrades to an empty set.
func decodePermissions(raw string) []string {
	if raw == "" {
		return nil
	}
	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil
	}
	return perms
}

func (e *Engine) verdictFor(score float64) domain.Verdict {
	switch {
	case score >= e.cfg.LikelyFakeThreshold:
		return domain.VerdictLikelyFake
	case score >= e.cfg.SuspiciousThreshold:
		return domain.VerdictSuspicious
	default:
		return domain.VerdictClean
	}
}

// certMatches compares fingerprints case-insensitively; stored fingerprints
// come from different tools with inconsistent casing.
func certMatches(candidate, official string) bool {
	return candidate != "" && official != "" && strings.EqualFold(candidate, official)
}
