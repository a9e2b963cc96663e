package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/report"
	"github.com/brandguard/brandguard/internal/repository"
	"github.com/brandguard/brandguard/internal/service"
)

// ReportHandler serves takedown report downloads, generating the PDF on
// demand when the pipeline did not produce one.
type ReportHandler struct {
	scanService *service.ScanService
	brandRepo   repository.BrandRepository
	reportRepo  repository.ReportRepository
	generator   *report.Generator
	logger      *logrus.Logger
}

func NewReportHandler(
	scanService *service.ScanService,
	brandRepo repository.BrandRepository,
	reportRepo repository.ReportRepository,
	generator *report.Generator,
	logger *logrus.Logger,
) *ReportHandler {
	return &ReportHandler{
		scanService: scanService,
		brandRepo:   brandRepo,
		reportRepo:  reportRepo,
		generator:   generator,
		logger:      logger,
	}
}

// Download returns the takedown PDF for a completed scan.
func (h *ReportHandler) Download(c *gin.Context) {
	scanID := c.Param("id")

	scan, err := h.scanService.GetScan(c.Request.Context(), scanID)
	if err != nil {
		if errors.Is(err, service.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "scan not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to load scan",
		})
		return
	}

	if scan.Status != domain.ScanStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"status":  "error",
			"message": "scan has not completed",
		})
		return
	}

	// Reuse the stored report when its file still exists.
	if record, err := h.reportRepo.FindByScanID(c.Request.Context(), scanID); err == nil {
		if _, statErr := os.Stat(record.FilePath); statErr == nil {
			c.FileAttachment(record.FilePath, "takedown_"+scanID+".pdf")
			return
		}
		h.logger.WithField("path", record.FilePath).Warn("Stored report file missing, regenerating")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to load report",
		})
		return
	}

	var brand *domain.Brand
	if scan.MatchedBrandID != nil {
		if b, err := h.brandRepo.FindByID(c.Request.Context(), *scan.MatchedBrandID); err == nil {
			brand = b
		}
	}

	path, err := h.generator.Generate(scan, brand)
	if err != nil {
		h.logger.WithError(err).WithField("scan_id", scanID).Error("Report generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to generate report",
		})
		return
	}

	now := time.Now().UTC()
	record := &domain.TakedownReport{
		ScanID:      scanID,
		FilePath:    path,
		FakeScore:   scan.FakeScore,
		GeneratedAt: &now,
	}
	if scan.MatchedBrandID != nil {
		record.BrandID = *scan.MatchedBrandID
	}
	if err := h.reportRepo.Save(c.Request.Context(), record); err != nil {
		h.logger.WithError(err).WithField("scan_id", scanID).Warn("Failed to persist report record")
	}

	c.FileAttachment(path, "takedown_"+scanID+".pdf")
}
