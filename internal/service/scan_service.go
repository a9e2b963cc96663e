package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/queue"
	"github.com/brandguard/brandguard/internal/repository"
)

var (
	ErrScanNotFound   = errors.New("scan not found")
	ErrDuplicateScan  = errors.New("a scan for this APK was created moments ago")
	ErrScanNotRunning = errors.New("scan is not running")
)

// dedupeWindowSeconds guards against duplicate scans when the watcher fires
// several events for the same file.
const dedupeWindowSeconds = 60

// ScanService creates scan records and hands them to the queue.
type ScanService struct {
	scanRepo repository.ScanRepository
	producer *queue.Producer
	logger   *logrus.Logger
}

func NewScanService(scanRepo repository.ScanRepository, producer *queue.Producer, logger *logrus.Logger) *ScanService {
	return &ScanService{
		scanRepo: scanRepo,
		producer: producer,
		logger:   logger,
	}
}

// CreateScan registers a new scan for the APK at apkPath and publishes it to
// the work queue. pinnedBrandID, when set, restricts the comparison to one
// brand.
func (s *ScanService) CreateScan(ctx context.Context, apkPath string, pinnedBrandID *uint) (*domain.Scan, error) {
	apkName := filepath.Base(apkPath)

	recent, err := s.scanRepo.HasRecentScanForAPK(ctx, apkName, dedupeWindowSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to check for recent scans: %w", err)
	}
	if recent {
		s.logger.WithField("apk_name", apkName).Info("Skipping duplicate scan")
		return nil, ErrDuplicateScan
	}

	scan := &domain.Scan{
		ID:            uuid.New().String(),
		APKName:       apkName,
		APKPath:       apkPath,
		Status:        domain.ScanStatusQueued,
		PinnedBrandID: pinnedBrandID,
		CurrentStep:   "waiting in queue",
	}

	if err := s.scanRepo.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to create scan record: %w", err)
	}

	msg := &queue.ScanMessage{
		ScanID:  scan.ID,
		APKName: scan.APKName,
		APKPath: scan.APKPath,
	}
	if err := s.producer.PublishScan(ctx, msg); err != nil {
		// The record stays in queued state; ResetStuckScans or a manual
		// requeue can pick it up once the broker recovers.
		s.logger.WithError(err).WithField("scan_id", scan.ID).Error("Failed to publish scan, record left queued")
		return scan, fmt.Errorf("scan created but not queued: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"scan_id":  scan.ID,
		"apk_name": apkName,
	}).Info("Scan created")

	return scan, nil
}

func (s *ScanService) GetScan(ctx context.Context, id string) (*domain.Scan, error) {
	scan, err := s.scanRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return scan, nil
}

func (s *ScanService) ListScans(ctx context.Context, page, pageSize int, status, search string) ([]*domain.Scan, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.scanRepo.ListWithFilter(ctx, page, pageSize, status, search)
}

func (s *ScanService) DeleteScan(ctx context.Context, id string) error {
	if _, err := s.scanRepo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrScanNotFound
		}
		return err
	}
	return s.scanRepo.Delete(ctx, id)
}

// StopScan marks a running scan for cancellation. The worker observes the
// flag between stages.
func (s *ScanService) StopScan(ctx context.Context, id string) error {
	scan, err := s.scanRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrScanNotFound
		}
		return err
	}

	switch scan.Status {
	case domain.ScanStatusCompleted, domain.ScanStatusFailed, domain.ScanStatusCancelled:
		return ErrScanNotRunning
	}

	if err := s.scanRepo.MarkShouldStop(ctx, id); err != nil {
		return fmt.Errorf("failed to mark scan for stop: %w", err)
	}

	// Queued scans can be cancelled immediately; running ones finish their
	// current stage first.
	if scan.Status == domain.ScanStatusQueued {
		return s.scanRepo.UpdateStatus(ctx, id, domain.ScanStatusCancelled)
	}
	return nil
}

// StatusCounts summarizes scans per status for the dashboard.
func (s *ScanService) StatusCounts(ctx context.Context) (map[string]int64, int64, error) {
	return s.scanRepo.GetStatusCounts(ctx)
}

// QueueDepth reports how many scan messages are waiting in the broker.
func (s *ScanService) QueueDepth() (int, error) {
	return s.producer.GetQueueSize()
}
