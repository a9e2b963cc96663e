package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  mode: release
database:
  type: mysql
  host: db.example
  port: 3306
  user: bg
  db_name: brandguard
rabbitmq:
  host: mq.example
  port: 5672
  queue: brandguard.scans
worker:
  concurrency: 8
  queue_size: 200
scoring:
  suspicious_threshold: 35
  likely_fake_threshold: 75
report:
  organization: Acme Legal
  auto_generate: true
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "brandguard.scans", cfg.RabbitMQ.Queue)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 35.0, cfg.Scoring.SuspiciousThreshold)
	assert.Equal(t, 75.0, cfg.Scoring.LikelyFakeThreshold)
	assert.Equal(t, "Acme Legal", cfg.Report.Organization)
	assert.True(t, cfg.Report.AutoGenerate)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.Scoring.NameWeight)
	assert.Equal(t, 1.0, cfg.Scoring.IconWeight)
	assert.Equal(t, 1.0, cfg.Scoring.PermissionWeight)
	assert.Equal(t, 40.0, cfg.Scoring.SuspiciousThreshold)
	assert.Equal(t, 70.0, cfg.Scoring.LikelyFakeThreshold)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 100, cfg.Worker.QueueSize)
	assert.Equal(t, "./inbound_apks", cfg.APKDir)
	assert.Equal(t, "./reports", cfg.ReportDir)
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestInitLogger_Levels(t *testing.T) {
	logger := InitLogger(&LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, "debug", logger.GetLevel().String())

	// Unknown level falls back to info.
	logger = InitLogger(&LogConfig{Level: "bogus", Format: "text"})
	assert.Equal(t, "info", logger.GetLevel().String())
}
