package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	RabbitMQ  RabbitMQConfig `mapstructure:"rabbitmq"`
	Worker    WorkerConfig   `mapstructure:"worker"`
	Scoring   ScoringConfig  `mapstructure:"scoring"`
	Report    ReportConfig   `mapstructure:"report"`
	Auth      AuthConfig     `mapstructure:"auth"`
	Log       LogConfig      `mapstructure:"log"`
	APKDir    string         `mapstructure:"apk_dir"`
	ReportDir string         `mapstructure:"report_dir"`
	DataDir   string         `mapstructure:"data_dir"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"` // number of scan workers
	QueueSize   int `mapstructure:"queue_size"`  // in-process job buffer
}

// ScoringConfig controls how individual risk signals are combined into the
// fake score and how the verdict is derived from it. Weights default to 1.0
// (plain average). Thresholds are on the 0-100 scale.
type ScoringConfig struct {
	NameWeight       float64 `mapstructure:"name_weight"`
	IconWeight       float64 `mapstructure:"icon_weight"`
	PermissionWeight float64 `mapstructure:"permission_weight"`

	SuspiciousThreshold float64 `mapstructure:"suspicious_threshold"`
	LikelyFakeThreshold float64 `mapstructure:"likely_fake_threshold"`
}

// ReportConfig identifies the requesting party on generated takedown letters.
type ReportConfig struct {
	Organization string `mapstructure:"organization"`
	SignerName   string `mapstructure:"signer_name"`
	ContactEmail string `mapstructure:"contact_email"`
	AutoGenerate bool   `mapstructure:"auto_generate"` // generate PDF when verdict is likely_fake
}

type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Environment overrides for deployment-specific values.
	viper.AutomaticEnv()

	// RabbitMQ
	viper.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	viper.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	viper.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	viper.BindEnv("database.host", "MYSQL_HOST")
	viper.BindEnv("database.port", "MYSQL_PORT")
	viper.BindEnv("database.user", "MYSQL_USER")
	viper.BindEnv("database.password", "MYSQL_PASS")
	viper.BindEnv("database.db_name", "MYSQL_DB")

	// Auth
	viper.BindEnv("auth.token", "BRANDGUARD_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scoring.NameWeight <= 0 {
		c.Scoring.NameWeight = 1.0
	}
	if c.Scoring.IconWeight <= 0 {
		c.Scoring.IconWeight = 1.0
	}
	if c.Scoring.PermissionWeight <= 0 {
		c.Scoring.PermissionWeight = 1.0
	}
	if c.Scoring.SuspiciousThreshold <= 0 {
		c.Scoring.SuspiciousThreshold = 40.0
	}
	if c.Scoring.LikelyFakeThreshold <= 0 {
		c.Scoring.LikelyFakeThreshold = 70.0
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 100
	}
	if c.APKDir == "" {
		c.APKDir = "./inbound_apks"
	}
	if c.ReportDir == "" {
		c.ReportDir = "./reports"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}
