package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/brandguard/brandguard/internal/service"
)

// BrandHandler serves the known-brand registry endpoints.
type BrandHandler struct {
	brandService *service.BrandService
	iconDir      string
	logger       *logrus.Logger
}

func NewBrandHandler(brandService *service.BrandService, iconDir string, logger *logrus.Logger) *BrandHandler {
	return &BrandHandler{
		brandService: brandService,
		iconDir:      iconDir,
		logger:       logger,
	}
}

// Create registers a brand from a multipart form: name, package_name,
// cert_sha256, permissions (JSON array), and an optional icon file.
func (h *BrandHandler) Create(c *gin.Context) {
	input, ok := h.parseInput(c)
	if !ok {
		return
	}

	brand, err := h.brandService.RegisterBrand(c.Request.Context(), input)
	if err != nil {
		h.writeServiceError(c, err, "failed to register brand")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   brand,
	})
}

func (h *BrandHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	input, ok := h.parseInput(c)
	if !ok {
		return
	}

	brand, err := h.brandService.UpdateBrand(c.Request.Context(), id, input)
	if err != nil {
		h.writeServiceError(c, err, "failed to update brand")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   brand,
	})
}

func (h *BrandHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	brand, err := h.brandService.GetBrand(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err, "failed to load brand")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   brand,
	})
}

func (h *BrandHandler) List(c *gin.Context) {
	brands, err := h.brandService.ListBrands(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list brands")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to list brands",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   brands,
	})
}

func (h *BrandHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.brandService.DeleteBrand(c.Request.Context(), id); err != nil {
		h.writeServiceError(c, err, "failed to delete brand")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "brand deleted",
	})
}

func (h *BrandHandler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "invalid brand id",
		})
		return 0, false
	}
	return uint(id), true
}

func (h *BrandHandler) parseInput(c *gin.Context) (*service.BrandInput, bool) {
	input := &service.BrandInput{
		Name:        c.PostForm("name"),
		PackageName: c.PostForm("package_name"),
		CertSHA256:  c.PostForm("cert_sha256"),
		Status:      c.PostForm("status"),
	}

	if raw := c.PostForm("permissions"); raw != "" {
		var perms []string
		if err := json.Unmarshal([]byte(raw), &perms); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "permissions must be a JSON array of strings",
			})
			return nil, false
		}
		input.Permissions = perms
	}

	// Optional reference icon upload.
	if file, err := c.FormFile("icon"); err == nil {
		if err := os.MkdirAll(h.iconDir, 0o755); err != nil {
			h.logger.WithError(err).Error("Failed to create icon directory")
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "failed to store icon",
			})
			return nil, false
		}
		dest := filepath.Join(h.iconDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dest); err != nil {
			h.logger.WithError(err).Error("Failed to save brand icon")
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "failed to store icon",
			})
			return nil, false
		}
		input.IconPath = dest
	}

	return input, true
}

func (h *BrandHandler) writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrBrandNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "brand not found",
		})
	case errors.Is(err, service.ErrBrandExists):
		c.JSON(http.StatusConflict, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrBrandInvalid), errors.Is(err, service.ErrBrandIconInvalid):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
	default:
		h.logger.WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": fallback,
		})
	}
}
