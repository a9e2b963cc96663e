package main

import (
	"log"
	"os"

	"github.com/brandguard/brandguard/internal/config"
	"github.com/brandguard/brandguard/internal/repository"
)

// Runs the schema migration and exits. InitDB auto-migrates all models, so
// this exists for deployments that migrate before rolling the server.
func main() {
	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}

	logger.Info("Migration completed successfully")
}
