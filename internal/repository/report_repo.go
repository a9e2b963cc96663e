package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
)

type ReportRepository interface {
	Save(ctx context.Context, report *domain.TakedownReport) error
	FindByScanID(ctx context.Context, scanID string) (*domain.TakedownReport, error)
}

type reportRepo struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepo{db: db}
}

// Save upserts on scan_id: regenerating a report replaces the record.
func (r *reportRepo) Save(ctx context.Context, report *domain.TakedownReport) error {
	var existing domain.TakedownReport
	err := r.db.WithContext(ctx).First(&existing, "scan_id = ?", report.ScanID).Error
	if err == nil {
		report.ID = existing.ID
		report.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(report).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	report.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepo) FindByScanID(ctx context.Context, scanID string) (*domain.TakedownReport, error) {
	var report domain.TakedownReport
	if err := r.db.WithContext(ctx).First(&report, "scan_id = ?", scanID).Error; err != nil {
		return nil, err
	}
	return &report, nil
}
