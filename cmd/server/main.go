package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/api"
	"github.com/brandguard/brandguard/internal/api/handlers"
	"github.com/brandguard/brandguard/internal/apk"
	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/middleware"
	"github.com/brandguard/brandguard/internal/queue"
	"github.com/brandguard/brandguard/internal/report"
	"github.com/brandguard/brandguard/internal/repository"
	"github.com/brandguard/brandguard/internal/scoring"
	"github.com/brandguard/brandguard/internal/service"
	"github.com/brandguard/brandguard/internal/watcher"
	"github.com/brandguard/brandguard/internal/worker"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fmt.Printf("BrandGuard Fake App Detector\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting BrandGuard %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	db, err := repository.InitDB(&cfg.Database, cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	scanRepo := repository.NewScanRepository(db, logger)
	brandRepo := repository.NewBrandRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Scans interrupted by the previous shutdown go back to the queue.
	if reset, err := scanRepo.ResetStuckScans(context.Background()); err != nil {
		logger.WithError(err).Warn("Failed to reset stuck scans")
	} else if reset > 0 {
		logger.Infof("Reset %d stuck scans back to queued", reset)
	}

	workerCount := cfg.Worker.Concurrency

	mqConfig := &queue.RabbitMQConfig{
		Host:     cfg.RabbitMQ.Host,
		Port:     cfg.RabbitMQ.Port,
		User:     cfg.RabbitMQ.User,
		Password: cfg.RabbitMQ.Password,
		VHost:    cfg.RabbitMQ.VHost,
	}
	mq, err := queue.NewRabbitMQ(mqConfig, cfg.RabbitMQ.Queue, workerCount, logger)
	if err != nil {
		logger.Fatalf("Failed to init RabbitMQ: %v", err)
	}
	defer mq.Close()
	logger.WithField("prefetch_count", workerCount).Info("RabbitMQ connected successfully")

	producer := queue.NewProducer(mq, logger)

	// Rebuild the broker queue from the database so it is the single source
	// of truth across restarts.
	if err := republishQueuedScans(db, mq, producer, logger); err != nil {
		logger.WithError(err).Warn("Failed to republish queued scans")
	}

	promMetrics := middleware.NewPrometheusMetrics(logger, "brandguard")
	logger.Info("Prometheus metrics initialized")

	progressHub := handlers.NewProgressHub(logger)

	extractor := apk.NewExtractor(logger)
	engine := scoring.NewEngine(&cfg.Scoring, logger)
	reportGen := report.NewGenerator(&cfg.Report, cfg.ReportDir, logger)

	orchestrator := worker.NewOrchestrator(
		scanRepo, brandRepo, reportRepo,
		extractor, engine, reportGen,
		promMetrics, progressHub, &cfg.Report, logger,
	)

	pool := worker.NewPool(workerCount, cfg.Worker.QueueSize, orchestrator, logger)
	pool.Start(context.Background())
	defer pool.Stop()
	logger.Infof("Worker pool started with %d workers", workerCount)

	// Periodic gauge refresh for queue depth and pool load.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			if depth, err := producer.GetQueueSize(); err == nil {
				promMetrics.SetQueueDepth(depth)
			}
			promMetrics.SetWorkerPool(pool.Size(), pool.QueuedJobs())
		}
	}()

	consumer := queue.NewConsumer(mq, createScanHandler(pool, producer, logger), workerCount, logger)
	if err := consumer.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start consumer: %v", err)
	}
	defer consumer.Stop()
	logger.Infof("Scan consumer started with %d workers", workerCount)

	scanService := service.NewScanService(scanRepo, producer, logger)

	fileWatcher, err := watcher.NewFileWatcher(cfg.APKDir, "*.apk", createFileHandler(scanService, logger), logger)
	if err != nil {
		logger.Fatalf("Failed to create file watcher: %v", err)
	}
	defer fileWatcher.Stop()

	if err := fileWatcher.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start file watcher: %v", err)
	}
	logger.Infof("File watcher started for directory: %s", cfg.APKDir)

	api.Version = Version
	router := api.SetupRouter(cfg, logger, db, producer, promMetrics, progressHub)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // large APK uploads
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("Server stopped")
}

// createScanHandler bridges RabbitMQ deliveries into the worker pool.
func createScanHandler(pool *worker.Pool, producer *queue.Producer, logger *logrus.Logger) queue.ScanHandler {
	return func(ctx context.Context, msg *queue.ScanMessage) error {
		logger.WithFields(logrus.Fields{
			"scan_id":  msg.ScanID,
			"apk_name": msg.APKName,
		}).Info("Received scan from RabbitMQ, submitting to worker pool")

		job := &worker.Job{
			ScanID:  msg.ScanID,
			APKPath: msg.APKPath,
		}
		return pool.SubmitAndWait(ctx, job)
	}
}

// createFileHandler turns watcher events into scan records. The producer is
// driven through the scan service.
func createFileHandler(scanService *service.ScanService, logger *logrus.Logger) watcher.FileHandler {
	return func(ctx context.Context, filePath string) error {
		logger.WithField("file_path", filePath).Info("New APK file detected")

		scan, err := scanService.CreateScan(ctx, filePath, nil)
		if err != nil {
			// Duplicate or storage failure; the watcher retries nothing.
			return err
		}

		logger.WithFields(logrus.Fields{
			"scan_id":  scan.ID,
			"apk_name": scan.APKName,
		}).Info("Scan created from watched file")

		return nil
	}
}

// republishQueuedScans purges the broker queue and refills it from scans
// still marked queued in the database.
func republishQueuedScans(db *gorm.DB, mq *queue.RabbitMQ, producer *queue.Producer, logger *logrus.Logger) error {
	logger.Info("Rebuilding RabbitMQ queue from database...")

	purged, err := mq.PurgeQueue()
	if err != nil {
		logger.WithError(err).Warn("Failed to purge queue, continuing with republish...")
	} else if purged > 0 {
		logger.WithField("purged_count", purged).Info("Cleared stale messages from queue")
	}

	var queued []struct {
		ID      string
		APKName string
		APKPath string
	}
	err = db.Table("apk_scans").
		Select("id", "apk_name", "apk_path").
		Where("status = ?", "queued").
		Order("created_at ASC").
		Find(&queued).Error
	if err != nil {
		return fmt.Errorf("failed to query queued scans: %w", err)
	}

	if len(queued) == 0 {
		logger.Info("No queued scans found, queue is empty and clean")
		return nil
	}

	successCount := 0
	for _, scan := range queued {
		msg := &queue.ScanMessage{
			ScanID:  scan.ID,
			APKName: scan.APKName,
			APKPath: scan.APKPath,
		}
		if err := producer.PublishScan(context.Background(), msg); err != nil {
			logger.WithError(err).WithField("scan_id", scan.ID).Error("Failed to republish scan")
			continue
		}
		successCount++
	}

	logger.WithFields(logrus.Fields{
		"total":   len(queued),
		"success": successCount,
		"failed":  len(queued) - successCount,
	}).Info("Queued scans republished to RabbitMQ")

	return nil
}
