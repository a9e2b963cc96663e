package scoring

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/domain"
)

func testEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewEngine(&config.ScoringConfig{
		NameWeight:          1.0,
		IconWeight:          1.0,
		PermissionWeight:    1.0,
		SuspiciousThreshold: 40.0,
		LikelyFakeThreshold: 70.0,
	}, logger)
}

func TestEvaluate_NoBrands(t *testing.T) {
	e := testEngine()

	eval := e.Evaluate(&Candidate{AppName: "Some App"}, nil)

	assert.Empty(t, eval.Signals)
	assert.Nil(t, eval.Best)
	assert.Equal(t, 0.0, eval.Score)
	assert.Equal(t, domain.VerdictUnknown, eval.Verdict)
}

func TestEvaluate_CertMatchShortCircuits(t *testing.T) {
	e := testEngine()

	candidate := &Candidate{
		AppName:     "WhatsApp",
		PackageName: "com.whatsapp",
		CertSHA256:  "AABBCC",
	}
	brands := []*domain.Brand{
		{ID: 1, Name: "WhatsApp", PackageName: "com.whatsapp", CertSHA256: "aabbcc"},
	}

	eval := e.Evaluate(candidate, brands)

	require.NotNil(t, eval.Best)
	assert.True(t, eval.Best.CertMatch)
	assert.Equal(t, 0.0, eval.Score)
	assert.Equal(t, domain.VerdictOfficial, eval.Verdict)
}

func TestEvaluate_IdenticalNameScoresLikelyFake(t *testing.T) {
	e := testEngine()

	// Same display name and package, no cert: a clone.
	candidate := &Candidate{
		AppName:     "WhatsApp",
		PackageName: "com.whatsapp",
	}
	brands := []*domain.Brand{
		{ID: 1, Name: "WhatsApp", PackageName: "com.whatsapp", CertSHA256: "official-cert"},
	}

	eval := e.Evaluate(candidate, brands)

	require.NotNil(t, eval.Best)
	assert.False(t, eval.Best.CertMatch)
	assert.Equal(t, 100.0, eval.Best.NameRisk)
	assert.Equal(t, 100.0, eval.Score)
	assert.Equal(t, domain.VerdictLikelyFake, eval.Verdict)
}

func TestEvaluate_UnrelatedAppIsClean(t *testing.T) {
	e := testEngine()

	candidate := &Candidate{
		AppName:     "Zyx",
		PackageName: "org.qqqq.wwww",
	}
	brands := []*domain.Brand{
		{ID: 1, Name: "Facebook", PackageName: "com.facebook.katana"},
	}

	eval := e.Evaluate(candidate, brands)

	require.NotNil(t, eval.Best)
	assert.Less(t, eval.Score, 40.0)
	assert.Equal(t, domain.VerdictClean, eval.Verdict)
}

func TestEvaluate_PicksHighestScoringBrand(t *testing.T) {
	e := testEngine()

	candidate := &Candidate{
		AppName:     "Instagram",
		PackageName: "com.instagram.android",
	}
	brands := []*domain.Brand{
		{ID: 1, Name: "Facebook", PackageName: "com.facebook.katana"},
		{ID: 2, Name: "Instagram", PackageName: "com.instagram.android"},
	}

	eval := e.Evaluate(candidate, brands)

	require.NotNil(t, eval.Best)
	assert.Equal(t, uint(2), eval.Best.BrandID)
	assert.Len(t, eval.Signals, 2)
}

func TestCompareBrand_MissingSignalsExcludedFromMean(t *testing.T) {
	e := testEngine()

	// No icon and no permissions on either side: the score is the name
	// risk alone, not dragged down by zero-valued absent signals.
	candidate := &Candidate{
		AppName:     "PayPal",
		PackageName: "com.paypal.android.p2pmobile",
	}
	brand := &domain.Brand{
		ID:          1,
		Name:        "PayPal",
		PackageName: "com.paypal.android.p2pmobile",
	}

	signal := e.compareBrand(candidate, brand)

	assert.Equal(t, 100.0, signal.NameRisk)
	assert.Equal(t, 100.0, signal.Score)
}

func TestCompareBrand_PermissionOverlap(t *testing.T) {
	e := testEngine()

	candidate := &Candidate{
		AppName:     "Bank",
		PackageName: "com.bank",
		Permissions: []string{"android.permission.INTERNET", "android.permission.CAMERA"},
	}
	brand := &domain.Brand{
		ID:          1,
		Name:        "Bank",
		PackageName: "com.bank",
		Permissions: `["android.permission.INTERNET","android.permission.CAMERA"]`,
	}

	signal := e.compareBrand(candidate, brand)

	assert.Equal(t, 100.0, signal.PermissionRisk)
	assert.Equal(t, 100.0, signal.Score)
}

func TestCompareBrand_MalformedBrandPermissions(t *testing.T) {
	e := testEngine()

	candidate := &Candidate{
		AppName:     "Bank",
		PackageName: "com.bank",
		Permissions: []string{"android.permission.INTERNET"},
	}
	brand := &domain.Brand{
		ID:          1,
		Name:        "Bank",
		PackageName: "com.bank",
		Permissions: "{not json",
	}

	// Malformed registry data degrades to no permission signal.
	signal := e.compareBrand(candidate, brand)
	assert.Equal(t, 0.0, signal.PermissionRisk)
	assert.Equal(t, 100.0, signal.Score)
}

func TestVerdictThresholds(t *testing.T) {
	e := testEngine()

	assert.Equal(t, domain.VerdictClean, e.verdictFor(39.9))
	assert.Equal(t, domain.VerdictSuspicious, e.verdictFor(40.0))
	assert.Equal(t, domain.VerdictSuspicious, e.verdictFor(69.9))
	assert.Equal(t, domain.VerdictLikelyFake, e.verdictFor(70.0))
	assert.Equal(t, domain.VerdictLikelyFake, e.verdictFor(100.0))
}

func TestCertMatches(t *testing.T) {
	assert.True(t, certMatches("AABB", "aabb"))
	assert.False(t, certMatches("", "aabb"))
	assert.False(t, certMatches("aabb", ""))
	assert.False(t, certMatches("aabb", "ccdd"))
}
