package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/brandguard/brandguard/internal/service"
)

// ScanHandler serves the scan endpoints: upload, list, detail, stop, delete.
type ScanHandler struct {
	scanService *service.ScanService
	apkDir      string
	logger      *logrus.Logger
}

func NewScanHandler(scanService *service.ScanService, apkDir string, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
		apkDir:      apkDir,
		logger:      logger,
	}
}

// Upload accepts a multipart APK, stores it, and queues a scan.
// An optional brand_id form field pins the comparison to one brand.
func (h *ScanHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "no APK file in request",
		})
		return
	}
	if file.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "uploaded file is empty",
		})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".apk") {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "only .apk files are accepted",
		})
		return
	}

	var pinnedBrandID *uint
	if raw := c.PostForm("brand_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "invalid brand_id",
			})
			return
		}
		v := uint(id)
		pinnedBrandID = &v
	}

	if err := os.MkdirAll(h.apkDir, 0o755); err != nil {
		h.logger.WithError(err).Error("Failed to create APK directory")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to store file",
		})
		return
	}

	dest := filepath.Join(h.apkDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, dest); err != nil {
		h.logger.WithError(err).WithField("dest", dest).Error("Failed to save uploaded APK")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to store file",
		})
		return
	}

	scan, err := h.scanService.CreateScan(c.Request.Context(), dest, pinnedBrandID)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateScan) {
			c.JSON(http.StatusConflict, gin.H{
				"status":  "error",
				"message": err.Error(),
			})
			return
		}
		h.logger.WithError(err).Error("Failed to create scan")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to create scan",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   scan,
	})
}

func (h *ScanHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")
	search := c.Query("search")

	scans, total, err := h.scanService.ListScans(c.Request.Context(), page, pageSize, status, search)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scans")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to list scans",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"scans":     scans,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

func (h *ScanHandler) Get(c *gin.Context) {
	scan, err := h.scanService.GetScan(c.Request.Context(), c.Param("id"))
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

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   scan,
	})
}

func (h *ScanHandler) Stop(c *gin.Context) {
	err := h.scanService.StopScan(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "scan marked for cancellation",
		})
	case errors.Is(err, service.ErrScanNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "scan not found",
		})
	case errors.Is(err, service.ErrScanNotRunning):
		c.JSON(http.StatusConflict, gin.H{
			"status":  "error",
			"message": "scan has already finished",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to stop scan",
		})
	}
}

func (h *ScanHandler) Delete(c *gin.Context) {
	err := h.scanService.DeleteScan(c.Request.Context(), c.Param("id"))
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
			"message": "failed to delete scan",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "scan deleted",
	})
}

// Stats reports scan counts per status and the broker queue depth.
func (h *ScanHandler) Stats(c *gin.Context) {
	counts, total, err := h.scanService.StatusCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to load stats",
		})
		return
	}

	queueDepth := -1
	if depth, err := h.scanService.QueueDepth(); err == nil {
		queueDepth = depth
	} else {
		h.logger.WithError(err).Warn("Queue depth unavailable")
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"total":       total,
			"by_status":   counts,
			"queue_depth": queueDepth,
		},
	})
}
