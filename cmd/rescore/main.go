package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/repository"
	"github.com/brandguard/brandguard/internal/scoring"
)

// Re-evaluates completed scans against the current brand registry using the
// persisted metadata, without touching the original APK files. Run after
// registering new brands or tuning the scoring thresholds.
func main() {
	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}

	scanRepo := repository.NewScanRepository(db, logger)
	brandRepo := repository.NewBrandRepository(db)
	engine := scoring.NewEngine(&cfg.Scoring, logger)

	ctx := context.Background()

	scans, err := scanRepo.ListByStatus(ctx, domain.ScanStatusCompleted)
	if err != nil {
		logger.Fatalf("Failed to list completed scans: %v", err)
	}
	if len(scans) == 0 {
		logger.Info("No completed scans to rescore")
		return
	}

	logger.Infof("Rescoring %d completed scans", len(scans))

	rescored := 0
	skipped := 0
	for _, scan := range scans {
		// ListByStatus returns light rows; reload with associations.
		full, err := scanRepo.FindByID(ctx, scan.ID)
		if err != nil {
			logger.WithError(err).WithField("scan_id", scan.ID).Warn("Failed to load scan, skipping")
			skipped++
			continue
		}
		if full.Metadata == nil {
			logger.WithField("scan_id", scan.ID).Warn("Scan has no stored metadata, skipping")
			skipped++
			continue
		}

		var perms []string
		if full.Metadata.PermissionsJSON != "" {
			if err := json.Unmarshal([]byte(full.Metadata.PermissionsJSON), &perms); err != nil {
				logger.WithError(err).WithField("scan_id", scan.ID).Warn("Malformed stored permissions, treating as empty")
			}
		}

		candidate := &scoring.Candidate{
			AppName:     full.AppName,
			PackageName: full.PackageName,
			Permissions: perms,
			IconPHash:   full.Metadata.IconPHash,
			CertSHA256:  full.Metadata.CertSHA256,
		}

		brands, err := loadBrands(ctx, brandRepo, full)
		if err != nil {
			logger.WithError(err).WithField("scan_id", scan.ID).Warn("Failed to load brands, skipping")
			skipped++
			continue
		}

		eval := engine.Evaluate(candidate, brands)

		if err := scanRepo.ReplaceSignals(ctx, scan.ID, eval.Signals); err != nil {
			logger.WithError(err).WithField("scan_id", scan.ID).Error("Failed to store signals")
			skipped++
			continue
		}

		var matchedBrandID *uint
		if eval.Best != nil {
			id := eval.Best.BrandID
			matchedBrandID = &id
		}
		if err := scanRepo.UpdateResult(ctx, scan.ID, matchedBrandID, eval.Score, eval.Verdict); err != nil {
			logger.WithError(err).WithField("scan_id", scan.ID).Error("Failed to store result")
			skipped++
			continue
		}

		if full.FakeScore != eval.Score || full.Verdict != eval.Verdict {
			logger.Infof("Scan %s: score %.2f -> %.2f, verdict %q -> %q",
				scan.ID, full.FakeScore, eval.Score, full.Verdict, eval.Verdict)
		}
		rescored++
	}

	logger.Infof("Rescore finished: %d updated, %d skipped", rescored, skipped)
}

func loadBrands(ctx context.Context, brandRepo repository.BrandRepository, scan *domain.Scan) ([]*domain.Brand, error) {
	if scan.PinnedBrandID != nil {
		brand, err := brandRepo.FindByID(ctx, *scan.PinnedBrandID)
		if err != nil {
			return nil, err
		}
		return []*domain.Brand{brand}, nil
	}
	return brandRepo.ListActive(ctx)
}
