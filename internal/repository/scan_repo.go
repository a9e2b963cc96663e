package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
)

type ScanRepository interface {
	Create(ctx context.Context, scan *domain.Scan) error
	Update(ctx context.Context, scan *domain.Scan) error
	FindByID(ctx context.Context, id string) (*domain.Scan, error)
	ListWithFilter(ctx context.Context, page, pageSize int, statusFilter, search string) ([]*domain.Scan, int64, error)
	ListByStatus(ctx context.Context, status domain.ScanStatus) ([]*domain.Scan, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status domain.ScanStatus) error
	UpdateProgress(ctx context.Context, id string, step string, percent int) error
	UpdateResult(ctx context.Context, id string, matchedBrandID *uint, score float64, verdict domain.Verdict) error
	UpdateFailure(ctx context.Context, id string, failureType domain.FailureType, errorMessage string) error
	ShouldStop(ctx context.Context, id string) (bool, error)
	MarkShouldStop(ctx context.Context, id string) error
	SaveMetadata(ctx context.Context, meta *domain.ScanMetadata) error
	ReplaceSignals(ctx context.Context, scanID string, signals []domain.ScanSignal) error
	// Retry bookkeeping: the counter and the reset are separate atomic
	// updates so concurrent workers cannot double-reset a scan.
	IncrementRetryCount(ctx context.Context, id string) (int, error)
	ResetForRetry(ctx context.Context, id string) error
	// HasRecentScanForAPK guards against duplicate scans when the file
	// watcher fires multiple events for one large copy.
	HasRecentScanForAPK(ctx context.Context, apkName string, withinSeconds int) (bool, error)
	GetStatusCounts(ctx context.Context) (map[string]int64, int64, error)
	// ResetStuckScans requeues scans interrupted by a service restart.
	ResetStuckScans(ctx context.Context) (int64, error)
}

type scanRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewScanRepository(db *gorm.DB, logger *logrus.Logger) ScanRepository {
	return &scanRepo{db: db, logger: logger}
}

func (r *scanRepo) Create(ctx context.Context, scan *domain.Scan) error {
	scan.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *scanRepo) Update(ctx context.Context, scan *domain.Scan) error {
	// Main-table fields only; associations are written through their own
	// repository methods so concurrent stages cannot overwrite each other.
	err := r.db.WithContext(ctx).
		Model(scan).
		Select("apk_name", "apk_path", "app_name", "package_name", "version_name",
			"status", "should_stop", "error_message", "started_at", "completed_at",
			"current_step", "progress_percent").
		Updates(scan).Error

	if err != nil {
		r.logger.WithError(err).WithField("scan_id", scan.ID).Error("Scan update failed")
	}
	return err
}

func (r *scanRepo) FindByID(ctx context.Context, id string) (*domain.Scan, error) {
	var scan domain.Scan
	err := r.db.WithContext(ctx).
		Preload("Metadata").
		Preload("Signals").
		Preload("Report").
		First(&scan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (r *scanRepo) ListWithFilter(ctx context.Context, page, pageSize int, statusFilter, search string) ([]*domain.Scan, int64, error) {
	var scans []*domain.Scan
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Scan{})
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("apk_name LIKE ? OR app_name LIKE ? OR package_name LIKE ?", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Metadata", func(db *gorm.DB) *gorm.DB {
			// List view needs only the light columns.
			return db.Select("id", "scan_id", "cert_sha256", "permission_count", "file_size", "sha256")
		}).
		Preload("Report", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "scan_id", "file_path", "fake_score", "generated_at")
		}).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&scans).Error

	return scans, total, err
}

func (r *scanRepo) ListByStatus(ctx context.Context, status domain.ScanStatus) ([]*domain.Scan, error) {
	var scans []*domain.Scan
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&scans).Error
	return scans, err
}

func (r *scanRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scan_id = ?", id).Delete(&domain.ScanMetadata{}).Error; err != nil {
			return err
		}
		if err := tx.Where("scan_id = ?", id).Delete(&domain.ScanSignal{}).Error; err != nil {
			return err
		}
		if err := tx.Where("scan_id = ?", id).Delete(&domain.TakedownReport{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Scan{}, "id = ?", id).Error
	})
}

func (r *scanRepo) UpdateStatus(ctx context.Context, id string, status domain.ScanStatus) error {
	updates := map[string]interface{}{"status": status}

	now := time.Now().UTC()
	switch status {
	case domain.ScanStatusExtracting:
		updates["started_at"] = &now
	case domain.ScanStatusCompleted, domain.ScanStatusFailed, domain.ScanStatusCancelled:
		updates["completed_at"] = &now
	}

	return r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *scanRepo) UpdateProgress(ctx context.Context, id string, step string, percent int) error {
	return r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_step":     step,
			"progress_percent": percent,
		}).Error
}

func (r *scanRepo) UpdateResult(ctx context.Context, id string, matchedBrandID *uint, score float64, verdict domain.Verdict) error {
	return r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"matched_brand_id": matchedBrandID,
			"fake_score":       score,
			"verdict":          verdict,
		}).Error
}

func (r *scanRepo) UpdateFailure(ctx context.Context, id string, failureType domain.FailureType, errorMessage string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.ScanStatusFailed,
			"failure_type":  failureType,
			"error_message": errorMessage,
			"completed_at":  &now,
		}).Error
}

func (r *scanRepo) ShouldStop(ctx context.Context, id string) (bool, error) {
	var scan domain.Scan
	err := r.db.WithContext(ctx).
		Select("should_stop").
		First(&scan, "id = ?", id).Error
	if err != nil {
		return false, err
	}
	return scan.ShouldStop, nil
}

func (r *scanRepo) MarkShouldStop(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Update("should_stop", true).Error
}

func (r *scanRepo) SaveMetadata(ctx context.Context, meta *domain.ScanMetadata) error {
	meta.CreatedAt = time.Now().UTC()
	// Upsert on scan_id so a retried scan overwrites its earlier attempt.
	var existing domain.ScanMetadata
	err := r.db.WithContext(ctx).First(&existing, "scan_id = ?", meta.ScanID).Error
	if err == nil {
		meta.ID = existing.ID
		return r.db.WithContext(ctx).Save(meta).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Create(meta).Error
}

func (r *scanRepo) ReplaceSignals(ctx context.Context, scanID string, signals []domain.ScanSignal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scan_id = ?", scanID).Delete(&domain.ScanSignal{}).Error; err != nil {
			return err
		}
		if len(signals) == 0 {
			return nil
		}
		for i := range signals {
			signals[i].ID = 0
			signals[i].ScanID = scanID
		}
		return tx.Create(&signals).Error
	})
}

func (r *scanRepo) IncrementRetryCount(ctx context.Context, id string) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
	if err != nil {
		return 0, err
	}

	var scan domain.Scan
	if err := r.db.WithContext(ctx).Select("retry_count").First(&scan, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return scan.RetryCount, nil
}

func (r *scanRepo) ResetForRetry(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           domain.ScanStatusQueued,
			"failure_type":     domain.FailureTypeNone,
			"error_message":    "",
			"current_step":     "requeued for retry",
			"progress_percent": 0,
			"started_at":       nil,
			"completed_at":     nil,
		}).Error
}

func (r *scanRepo) HasRecentScanForAPK(ctx context.Context, apkName string, withinSeconds int) (bool, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(withinSeconds) * time.Second)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("apk_name = ? AND created_at > ?", apkName, cutoff).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *scanRepo) GetStatusCounts(ctx context.Context) (map[string]int64, int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	counts := make(map[string]int64, len(rows))
	var total int64
	for _, row := range rows {
		counts[row.Status] = row.Count
		total += row.Count
	}
	return counts, total, nil
}

func (r *scanRepo) ResetStuckScans(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Scan{}).
		Where("status IN ?", []domain.ScanStatus{
			domain.ScanStatusExtracting,
			domain.ScanStatusMatching,
			domain.ScanStatusScoring,
		}).
		Updates(map[string]interface{}{
			"status":           domain.ScanStatusQueued,
			"current_step":     "requeued after restart",
			"progress_percent": 0,
		})
	return res.RowsAffected, res.Error
}
