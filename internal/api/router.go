package api

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/api/handlers"
	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/middleware"
	"github.com/brandguard/brandguard/internal/queue"
	"github.com/brandguard/brandguard/internal/report"
	"github.com/brandguard/brandguard/internal/repository"
	"github.com/brandguard/brandguard/internal/service"
)

// Version is stamped at build time by the server binary.
var Version = "dev"

func SetupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	db *gorm.DB,
	producer *queue.Producer,
	promMetrics *middleware.PrometheusMetrics,
	progressHub *handlers.ProgressHub,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
	}

	// Wire dependencies.
	scanRepo := repository.NewScanRepository(db, logger)
	brandRepo := repository.NewBrandRepository(db)
	reportRepo := repository.NewReportRepository(db)

	scanService := service.NewScanService(scanRepo, producer, logger)
	brandService := service.NewBrandService(brandRepo, logger)
	reportGen := report.NewGenerator(&cfg.Report, cfg.ReportDir, logger)

	scanHandler := handlers.NewScanHandler(scanService, cfg.APKDir, logger)
	brandHandler := handlers.NewBrandHandler(brandService, filepath.Join(cfg.DataDir, "brand_icons"), logger)
	reportHandler := handlers.NewReportHandler(scanService, brandRepo, reportRepo, reportGen, logger)
	authHandler := handlers.NewAuthHandler(&cfg.Auth, logger)

	// Live scan progress over websocket.
	r.GET("/ws/scans/:id", progressHub.Subscribe)

	if promMetrics != nil {
		r.GET("/metrics", promMetrics.Handler())
	}

	v1 := r.Group("/api")
	{
		// Unauthenticated endpoints.
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": Version,
			})
		})
		v1.POST("/login", authHandler.Login)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(cfg.Auth.Token))
		{
			protected.GET("/auth/validate", authHandler.Validate)

			protected.GET("/stats", scanHandler.Stats)

			// Scan management.
			protected.POST("/scans", scanHandler.Upload)
			protected.GET("/scans", scanHandler.List)
			protected.GET("/scans/:id", scanHandler.Get)
			protected.DELETE("/scans/:id", scanHandler.Delete)
			protected.POST("/scans/:id/stop", scanHandler.Stop)
			protected.GET("/scans/:id/report", reportHandler.Download)

			// Brand registry.
			protected.GET("/brands", brandHandler.List)
			protected.POST("/brands", brandHandler.Create)
			protected.GET("/brands/:id", brandHandler.Get)
			protected.PUT("/brands/:id", brandHandler.Update)
			protected.DELETE("/brands/:id", brandHandler.Delete)
		}
	}

	return r
}

func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"status":  statusCode,
			"method":  method,
			"path":    path,
			"latency": latency.Milliseconds(),
		}).Info("HTTP Request")
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
