package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Scan{}, &domain.ScanMetadata{}, &domain.ScanSignal{},
		&domain.Brand{}, &domain.TakedownReport{},
	))
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// The producer is nil in these tests: every exercised path returns before
// publishing.
func newTestScanService(t *testing.T) (*ScanService, repository.ScanRepository) {
	logger := quietLogger()
	repo := repository.NewScanRepository(setupTestDB(t), logger)
	return NewScanService(repo, nil, logger), repo
}

func seedScan(t *testing.T, repo repository.ScanRepository, apkName string, status domain.ScanStatus) *domain.Scan {
	scan := &domain.Scan{
		ID:      uuid.New().String(),
		APKName: apkName,
		APKPath: "/tmp/" + apkName,
		Status:  status,
	}
	require.NoError(t, repo.Create(context.Background(), scan))
	return scan
}

func TestCreateScan_DuplicateWithinWindow(t *testing.T) {
	svc, repo := newTestScanService(t)
	ctx := context.Background()

	seedScan(t, repo, "dup.apk", domain.ScanStatusQueued)

	_, err := svc.CreateScan(ctx, "/tmp/dup.apk", nil)
	assert.ErrorIs(t, err, ErrDuplicateScan)
}

func TestGetScan_NotFound(t *testing.T) {
	svc, _ := newTestScanService(t)

	_, err := svc.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestGetScan_Found(t *testing.T) {
	svc, repo := newTestScanService(t)
	scan := seedScan(t, repo, "get.apk", domain.ScanStatusCompleted)

	found, err := svc.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "get.apk", found.APKName)
}

func TestListScans_NormalizesPaging(t *testing.T) {
	svc, repo := newTestScanService(t)
	seedScan(t, repo, "a.apk", domain.ScanStatusQueued)

	scans, total, err := svc.ListScans(context.Background(), -5, 100000, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, scans, 1)
}

func TestStopScan_QueuedIsCancelledImmediately(t *testing.T) {
	svc, repo := newTestScanService(t)
	ctx := context.Background()

	scan := seedScan(t, repo, "stop.apk", domain.ScanStatusQueued)
	require.NoError(t, svc.StopScan(ctx, scan.ID))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusCancelled, found.Status)
	assert.True(t, found.ShouldStop)
}

func TestStopScan_RunningIsFlaggedOnly(t *testing.T) {
	svc, repo := newTestScanService(t)
	ctx := context.Background()

	scan := seedScan(t, repo, "running.apk", domain.ScanStatusMatching)
	require.NoError(t, svc.StopScan(ctx, scan.ID))

	found, err := repo.FindByID(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusMatching, found.Status)
	assert.True(t, found.ShouldStop)
}

func TestStopScan_FinishedScanRejected(t *testing.T) {
	svc, repo := newTestScanService(t)

	scan := seedScan(t, repo, "done.apk", domain.ScanStatusCompleted)
	err := svc.StopScan(context.Background(), scan.ID)
	assert.ErrorIs(t, err, ErrScanNotRunning)
}

func TestStopScan_NotFound(t *testing.T) {
	svc, _ := newTestScanService(t)
	err := svc.StopScan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrScanNotFound)
}

func TestDeleteScan(t *testing.T) {
	svc, repo := newTestScanService(t)
	ctx := context.Background()

	scan := seedScan(t, repo, "del.apk", domain.ScanStatusCompleted)
	require.NoError(t, svc.DeleteScan(ctx, scan.ID))

	_, err := repo.FindByID(ctx, scan.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, svc.DeleteScan(ctx, scan.ID), ErrScanNotFound)
}

func TestStatusCounts(t *testing.T) {
	svc, repo := newTestScanService(t)

	seedScan(t, repo, "q1.apk", domain.ScanStatusQueued)
	seedScan(t, repo, "q2.apk", domain.ScanStatusQueued)
	seedScan(t, repo, "c1.apk", domain.ScanStatusCompleted)

	counts, total, err := svc.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), counts["queued"])
	assert.Equal(t, int64(1), counts["completed"])
}
