package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brandguard/brandguard/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&domain.Scan{},
		&domain.ScanMetadata{},
		&domain.ScanSignal{},
		&domain.Brand{},
		&domain.TakedownReport{},
	))
	return db
}

func newScanRepo(t *testing.T) (ScanRepository, *gorm.DB) {
	db := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewScanRepository(db, logger), db
}

func newScan(apkName string) *domain.Scan {
	return &domain.Scan{
		ID:      uuid.New().String(),
		APKName: apkName,
		APKPath: "/tmp/" + apkName,
		Status:  domain.ScanStatusQueued,
	}
}

func TestScanRepo_CreateAndFind(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("test.apk")
	require.NoError(t, repo.Create(ctx, scan))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.APKName, found.APKName)
	assert.Equal(t, domain.ScanStatusQueued, found.Status)
}

func TestScanRepo_FindByID_NotFound(t *testing.T) {
	repo, _ := newScanRepo(t)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestScanRepo_UpdateStatus_Timestamps(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("status.apk")
	require.NoError(t, repo.Create(ctx, scan))

	require.NoError(t, repo.UpdateStatus(ctx, scan.ID, domain.ScanStatusExtracting))
	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusExtracting, found.Status)
	assert.NotNil(t, found.StartedAt)
	assert.Nil(t, found.CompletedAt)

	require.NoError(t, repo.UpdateStatus(ctx, scan.ID, domain.ScanStatusCompleted))
	found, err = repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.NotNil(t, found.CompletedAt)
}

func TestScanRepo_UpdateResult(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("result.apk")
	require.NoError(t, repo.Create(ctx, scan))

	brandID := uint(7)
	require.NoError(t, repo.UpdateResult(ctx, scan.ID, &brandID, 85.5, domain.VerdictLikelyFake))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	require.NotNil(t, found.MatchedBrandID)
	assert.Equal(t, uint(7), *found.MatchedBrandID)
	assert.InDelta(t, 85.5, found.FakeScore, 0.001)
	assert.Equal(t, domain.VerdictLikelyFake, found.Verdict)
}

func TestScanRepo_UpdateFailure(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("fail.apk")
	require.NoError(t, repo.Create(ctx, scan))

	require.NoError(t, repo.UpdateFailure(ctx, scan.ID, domain.FailureTypeExtract, "manifest parse error"))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusFailed, found.Status)
	assert.Equal(t, domain.FailureTypeExtract, found.FailureType)
	assert.Equal(t, "manifest parse error", found.ErrorMessage)
	assert.NotNil(t, found.CompletedAt)
}

func TestScanRepo_SaveMetadata_Upsert(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("meta.apk")
	require.NoError(t, repo.Create(ctx, scan))

	meta := &domain.ScanMetadata{
		ScanID:          scan.ID,
		PermissionCount: 3,
		CertSHA256:      "first",
	}
	require.NoError(t, repo.SaveMetadata(ctx, meta))

	// Second save for the same scan replaces the row.
	meta2 := &domain.ScanMetadata{
		ScanID:          scan.ID,
		PermissionCount: 5,
		CertSHA256:      "second",
	}
	require.NoError(t, repo.SaveMetadata(ctx, meta2))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Metadata)
	assert.Equal(t, "second", found.Metadata.CertSHA256)
	assert.Equal(t, 5, found.Metadata.PermissionCount)
}

func TestScanRepo_ReplaceSignals(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("signals.apk")
	require.NoError(t, repo.Create(ctx, scan))

	first := []domain.ScanSignal{
		{BrandID: 1, BrandName: "A", Score: 10},
		{BrandID: 2, BrandName: "B", Score: 20},
	}
	require.NoError(t, repo.ReplaceSignals(ctx, scan.ID, first))

	second := []domain.ScanSignal{
		{BrandID: 3, BrandName: "C", Score: 90},
	}
	require.NoError(t, repo.ReplaceSignals(ctx, scan.ID, second))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, found.Signals, 1)
	assert.Equal(t, uint(3), found.Signals[0].BrandID)
}

func TestScanRepo_ShouldStop(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("stop.apk")
	require.NoError(t, repo.Create(ctx, scan))

	stopped, err := repo.ShouldStop(ctx, scan.ID)
	require.NoError(t, err)
	assert.False(t, stopped)

	require.NoError(t, repo.MarkShouldStop(ctx, scan.ID))

	stopped, err = repo.ShouldStop(ctx, scan.ID)
	require.NoError(t, err)
	assert.True(t, stopped)
}

func TestScanRepo_RetryBookkeeping(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("retry.apk")
	require.NoError(t, repo.Create(ctx, scan))
	require.NoError(t, repo.UpdateFailure(ctx, scan.ID, domain.FailureTypeStorageError, "db gone"))

	count, err := repo.IncrementRetryCount(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.IncrementRetryCount(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.ResetForRetry(ctx, scan.ID))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusQueued, found.Status)
	assert.Equal(t, domain.FailureTypeNone, found.FailureType)
	assert.Empty(t, found.ErrorMessage)
	assert.Equal(t, 2, found.RetryCount) // budget survives the reset
}

func TestScanRepo_HasRecentScanForAPK(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("dup.apk")
	require.NoError(t, repo.Create(ctx, scan))

	recent, err := repo.HasRecentScanForAPK(ctx, "dup.apk", 60)
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = repo.HasRecentScanForAPK(ctx, "other.apk", 60)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestScanRepo_ListWithFilter(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	a := newScan("alpha.apk")
	require.NoError(t, repo.Create(ctx, a))
	b := newScan("beta.apk")
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.UpdateStatus(ctx, b.ID, domain.ScanStatusCompleted))

	scans, total, err := repo.ListWithFilter(ctx, 1, 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, scans, 2)

	scans, total, err = repo.ListWithFilter(ctx, 1, 10, string(domain.ScanStatusCompleted), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, scans, 1)
	assert.Equal(t, b.ID, scans[0].ID)

	_, total, err = repo.ListWithFilter(ctx, 1, 10, "", "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestScanRepo_Delete_CascadesChildren(t *testing.T) {
	repo, db := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("cascade.apk")
	require.NoError(t, repo.Create(ctx, scan))
	require.NoError(t, repo.SaveMetadata(ctx, &domain.ScanMetadata{ScanID: scan.ID}))
	require.NoError(t, repo.ReplaceSignals(ctx, scan.ID, []domain.ScanSignal{{BrandID: 1}}))

	require.NoError(t, repo.Delete(ctx, scan.ID))

	_, err := repo.FindByID(ctx, scan.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var metaCount, signalCount int64
	db.Model(&domain.ScanMetadata{}).Where("scan_id = ?", scan.ID).Count(&metaCount)
	db.Model(&domain.ScanSignal{}).Where("scan_id = ?", scan.ID).Count(&signalCount)
	assert.Zero(t, metaCount)
	assert.Zero(t, signalCount)
}

func TestScanRepo_GetStatusCounts(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newScan("c.apk")))
	}
	done := newScan("done.apk")
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.UpdateStatus(ctx, done.ID, domain.ScanStatusCompleted))

	counts, total, err := repo.GetStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, int64(3), counts["queued"])
	assert.Equal(t, int64(1), counts["completed"])
}

func TestScanRepo_ResetStuckScans(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	stuck := newScan("stuck.apk")
	require.NoError(t, repo.Create(ctx, stuck))
	require.NoError(t, repo.UpdateStatus(ctx, stuck.ID, domain.ScanStatusMatching))

	queued := newScan("fine.apk")
	require.NoError(t, repo.Create(ctx, queued))

	reset, err := repo.ResetStuckScans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	found, err := repo.FindByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusQueued, found.Status)
}

func TestScanRepo_UpdateProgress(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	scan := newScan("progress.apk")
	require.NoError(t, repo.Create(ctx, scan))

	require.NoError(t, repo.UpdateProgress(ctx, scan.ID, "computing fake score", 70))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "computing fake score", found.CurrentStep)
	assert.Equal(t, 70, found.ProgressPercent)
}

func TestScanRepo_ListByStatus_Order(t *testing.T) {
	repo, _ := newScanRepo(t)
	ctx := context.Background()

	first := newScan("first.apk")
	require.NoError(t, repo.Create(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := newScan("second.apk")
	require.NoError(t, repo.Create(ctx, second))

	scans, err := repo.ListByStatus(ctx, domain.ScanStatusQueued)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, first.ID, scans[0].ID)
}
