package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandguard/brandguard/internal/apk"
	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/middleware"
	"github.com/brandguard/brandguard/internal/report"
	"github.com/brandguard/brandguard/internal/repository"
	"github.com/brandguard/brandguard/internal/retry"
	"github.com/brandguard/brandguard/internal/scoring"
	"github.com/brandguard/brandguard/internal/similarity"
)

// ProgressBroadcaster pushes live pipeline updates to connected clients.
// Implementations must not block.
type ProgressBroadcaster interface {
	BroadcastProgress(scanID, step string, percent int)
	BroadcastResult(scanID string, verdict string, score float64)
}

// Orchestrator runs the scan pipeline:
// extract -> match -> score -> (takedown report) -> complete.
type Orchestrator struct {
	scanRepo    repository.ScanRepository
	brandRepo   repository.BrandRepository
	reportRepo  repository.ReportRepository
	extractor   *apk.Extractor
	engine      *scoring.Engine
	reportGen   *report.Generator
	metrics     *middleware.PrometheusMetrics
	broadcaster ProgressBroadcaster
	reportCfg   *config.ReportConfig
	logger      *logrus.Logger
}

func NewOrchestrator(
	scanRepo repository.ScanRepository,
	brandRepo repository.BrandRepository,
	reportRepo repository.ReportRepository,
	extractor *apk.Extractor,
	engine *scoring.Engine,
	reportGen *report.Generator,
	metrics *middleware.PrometheusMetrics,
	broadcaster ProgressBroadcaster,
	reportCfg *config.ReportConfig,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		scanRepo:    scanRepo,
		brandRepo:   brandRepo,
		reportRepo:  reportRepo,
		extractor:   extractor,
		engine:      engine,
		reportGen:   reportGen,
		metrics:     metrics,
		broadcaster: broadcaster,
		reportCfg:   reportCfg,
		logger:      logger,
	}
}

// ExecuteScan runs the full pipeline for one scan. A returned retryable
// error signals the queue consumer to requeue the message; the scan's own
// retry budget bounds redelivery.
func (o *Orchestrator) ExecuteScan(ctx context.Context, scanID, apkPath string) error {
	startTime := time.Now()

	scan, err := o.scanRepo.FindByID(ctx, scanID)
	if err != nil {
		o.logger.WithError(err).WithField("scan_id", scanID).Error("Scan not found")
		return retry.NewNonRetryableError(fmt.Errorf("scan %s not found: %w", scanID, err))
	}

	if scan.ShouldStop {
		o.logger.WithField("scan_id", scanID).Info("Scan was stopped before execution")
		return o.scanRepo.UpdateStatus(ctx, scanID, domain.ScanStatusCancelled)
	}

	if o.metrics != nil {
		o.metrics.ScanStarted()
	}
	finalStatus := string(domain.ScanStatusFailed)
	defer func() {
		if o.metrics != nil {
			o.metrics.ScanFinished(finalStatus, time.Since(startTime))
		}
	}()

	// Stage 1: extraction.
	o.advance(ctx, scanID, domain.ScanStatusExtracting, "extracting APK metadata", 10)

	meta, err := o.extractor.Extract(ctx, apkPath)
	if err != nil {
		return o.failScan(ctx, scan, domain.FailureTypeExtract, err)
	}

	iconHash := ""
	if meta.Icon != nil {
		iconHash, err = similarity.HashImage(meta.Icon)
		if err != nil {
			// Icon hashing failure degrades to a missing icon signal.
			o.logger.WithError(err).WithField("scan_id", scanID).Warn("Icon hashing failed")
			iconHash = ""
		}
	}

	if err := o.persistMetadata(ctx, scan, meta, iconHash); err != nil {
		return o.failScan(ctx, scan, domain.FailureTypeStorageError, err)
	}

	if stopped, _ := o.scanRepo.ShouldStop(ctx, scanID); stopped {
		return o.scanRepo.UpdateStatus(ctx, scanID, domain.ScanStatusCancelled)
	}

	// Stage 2: brand matching.
	o.advance(ctx, scanID, domain.ScanStatusMatching, "comparing against brand registry", 40)

	brands, err := o.loadBrands(ctx, scan)
	if err != nil {
		return o.failScan(ctx, scan, domain.FailureTypeStorageError, err)
	}
	if len(brands) == 0 {
		o.logger.WithField("scan_id", scanID).Warn("Brand registry is empty, nothing to compare against")
	}

	candidate := &scoring.Candidate{
		AppName:     meta.AppName,
		PackageName: meta.PackageName,
		Permissions: meta.Permissions,
		IconPHash:   iconHash,
		CertSHA256:  meta.CertSHA256,
	}
	evaluation := o.engine.Evaluate(candidate, brands)

	// Stage 3: scoring.
	o.advance(ctx, scanID, domain.ScanStatusScoring, "computing fake score", 70)

	if err := o.scanRepo.ReplaceSignals(ctx, scanID, evaluation.Signals); err != nil {
		return o.failScan(ctx, scan, domain.FailureTypeStorageError, err)
	}

	var matchedBrandID *uint
	if evaluation.Best != nil {
		id := evaluation.Best.BrandID
		matchedBrandID = &id
	}
	if err := o.scanRepo.UpdateResult(ctx, scanID, matchedBrandID, evaluation.Score, evaluation.Verdict); err != nil {
		return o.failScan(ctx, scan, domain.FailureTypeStorageError, err)
	}

	if o.metrics != nil {
		o.metrics.ObserveFakeScore(evaluation.Score, string(evaluation.Verdict))
	}

	o.logger.WithFields(logrus.Fields{
		"scan_id":    scanID,
		"package":    meta.PackageName,
		"fake_score": evaluation.Score,
		"verdict":    evaluation.Verdict,
	}).Info("Scan scored")

	// Stage 4: takedown report for likely fakes.
	if evaluation.Verdict == domain.VerdictLikelyFake && o.reportCfg.AutoGenerate {
		o.advance(ctx, scanID, domain.ScanStatusScoring, "generating takedown report", 90)

		if err := o.generateReport(ctx, scanID, matchedBrandID); err != nil {
			return o.failScan(ctx, scan, domain.FailureTypeReportError, err)
		}
	}

	if err := o.scanRepo.UpdateStatus(ctx, scanID, domain.ScanStatusCompleted); err != nil {
		return o.failScan(ctx, scan, domain.FailureTypeStorageError, err)
	}
	o.progress(ctx, scanID, "completed", 100)

	if o.broadcaster != nil {
		o.broadcaster.BroadcastResult(scanID, string(evaluation.Verdict), evaluation.Score)
	}

	finalStatus = string(domain.ScanStatusCompleted)
	return nil
}

func (o *Orchestrator) persistMetadata(ctx context.Context, scan *domain.Scan, meta *apk.Metadata, iconHash string) error {
	permsJSON, err := json.Marshal(meta.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}

	record := &domain.ScanMetadata{
		ScanID:          scan.ID,
		PermissionsJSON: string(permsJSON),
		PermissionCount: len(meta.Permissions),
		CertSHA256:      meta.CertSHA256,
		IconPHash:       iconHash,
		FileSize:        meta.FileSize,
		MD5:             meta.MD5,
		SHA256:          meta.SHA256,
		MinSDK:          meta.MinSDK,
		TargetSDK:       meta.TargetSDK,
	}
	if err := o.scanRepo.SaveMetadata(ctx, record); err != nil {
		return fmt.Errorf("failed to save scan metadata: %w", err)
	}

	scan.AppName = meta.AppName
	scan.PackageName = meta.PackageName
	scan.VersionName = meta.VersionName
	if err := o.scanRepo.Update(ctx, scan); err != nil {
		return fmt.Errorf("failed to update scan fields: %w", err)
	}
	return nil
}

// loadBrands returns the pinned brand when the uploader named one,
// otherwise the whole active registry.
func (o *Orchestrator) loadBrands(ctx context.Context, scan *domain.Scan) ([]*domain.Brand, error) {
	if scan.PinnedBrandID != nil {
		brand, err := o.brandRepo.FindByID(ctx, *scan.PinnedBrandID)
		if err != nil {
			return nil, fmt.Errorf("pinned brand %d not found: %w", *scan.PinnedBrandID, err)
		}
		return []*domain.Brand{brand}, nil
	}
	return o.brandRepo.ListActive(ctx)
}

func (o *Orchestrator) generateReport(ctx context.Context, scanID string, brandID *uint) error {
	// Reload with metadata and the final score so the letter cites the
	// persisted values.
	scan, err := o.scanRepo.FindByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("failed to reload scan: %w", err)
	}

	var brand *domain.Brand
	if brandID != nil {
		if b, err := o.brandRepo.FindByID(ctx, *brandID); err == nil {
			brand = b
		}
	}

	// PDF writes can hit transient filesystem errors; give them one retry
	// before the failure taxonomy takes over.
	retryCfg := &retry.Config{
		MaxAttempts:     2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     time.Second,
		Strategy:        retry.StrategyFixed,
		Logger:          o.logger,
	}
	path, err := retry.DoWithResult(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return o.reportGen.Generate(scan, brand)
	})
	if err != nil {
		return fmt.Errorf("failed to generate takedown report: %w", err)
	}

	now := time.Now().UTC()
	record := &domain.TakedownReport{
		ScanID:      scanID,
		FilePath:    path,
		FakeScore:   scan.FakeScore,
		GeneratedAt: &now,
	}
	if brandID != nil {
		record.BrandID = *brandID
	}
	if err := o.reportRepo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save report record: %w", err)
	}

	if o.metrics != nil {
		o.metrics.ReportGenerated()
	}
	return nil
}

// failScan records the failure and, while the failure class has retry
// budget left, resets the scan and returns a retryable error so the queue
// redelivers it.
func (o *Orchestrator) failScan(ctx context.Context, scan *domain.Scan, ft domain.FailureType, cause error) error {
	o.logger.WithError(cause).WithFields(logrus.Fields{
		"scan_id":      scan.ID,
		"failure_type": ft,
		"severity":     ft.GetSeverity(),
	}).Error("Scan failed")

	if err := o.scanRepo.UpdateFailure(ctx, scan.ID, ft, cause.Error()); err != nil {
		o.logger.WithError(err).WithField("scan_id", scan.ID).Error("Failed to record scan failure")
	}

	if ft.CanRetry() {
		count, err := o.scanRepo.IncrementRetryCount(ctx, scan.ID)
		if err == nil && count <= ft.GetMaxRetryCount() {
			if err := o.scanRepo.ResetForRetry(ctx, scan.ID); err == nil {
				o.logger.WithFields(logrus.Fields{
					"scan_id":     scan.ID,
					"retry_count": count,
					"max_retry":   ft.GetMaxRetryCount(),
				}).Warn("Scan reset for retry")
				return retry.NewRetryableError(fmt.Errorf("scan %s failed (%s), retrying: %w", scan.ID, ft, cause))
			}
		}
	}

	return retry.NewNonRetryableError(fmt.Errorf("scan %s failed (%s): %w", scan.ID, ft, cause))
}

func (o *Orchestrator) advance(ctx context.Context, scanID string, status domain.ScanStatus, step string, percent int) {
	if err := o.scanRepo.UpdateStatus(ctx, scanID, status); err != nil {
		o.logger.WithError(err).WithField("scan_id", scanID).Warn("Failed to update scan status")
	}
	o.progress(ctx, scanID, step, percent)
}

func (o *Orchestrator) progress(ctx context.Context, scanID, step string, percent int) {
	if err := o.scanRepo.UpdateProgress(ctx, scanID, step, percent); err != nil {
		o.logger.WithError(err).WithField("scan_id", scanID).Warn("Failed to update scan progress")
	}
	if o.broadcaster != nil {
		o.broadcaster.BroadcastProgress(scanID, step, percent)
	}
}
