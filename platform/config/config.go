// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// PipelineConfig provides settings for the sync pipeline runner.
type PipelineConfig interface {
	GetDataDir() string
	GetGracePeriodDays() int
	GetFetchConcurrency() int
	GetBrowserConcurrency() int
	GetAllowPartialNAV() bool
	GetTimezone() string
}

// ArchiveConfig provides settings for the archiver and housekeeping.
type ArchiveConfig interface {
	GetDataDir() string
	GetArchiveDir() string
}

// ColdStoreConfig provides settings for S3-compatible cold storage uploads.
type ColdStoreConfig interface {
	GetColdStoreEndpoint() string
	GetColdStoreAccessKey() string
	GetColdStoreSecretKey() string
	GetColdStoreBucket() string
	GetColdStoreUseSSL() bool
	IsColdStoreEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetPipelineCronSpec() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	DBHost             string
	DBPort             string
	DBUser             string
	DBPassword         string
	DBName             string
	DataDir            string
	ArchiveDir         string
	GracePeriodDays    int
	FetchConcurrency   int
	BrowserConcurrency int
	AllowPartialNAV    bool
	Timezone           string
	RedisURL           string
	AsynqQueueName     string
	AsynqConcurrency   int
	PipelineCronSpec   string
	ColdStoreEndpoint  string
	ColdStoreAccessKey string
	ColdStoreSecretKey string
	ColdStoreBucket    string
	ColdStoreUseSSL    bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation. Credentials are URL-escaped so passwords
// with special characters survive the round trip.
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(c.DBPassword),
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// PipelineConfig implementation
func (c *Config) GetDataDir() string          { return c.DataDir }
func (c *Config) GetGracePeriodDays() int     { return c.GracePeriodDays }
func (c *Config) GetFetchConcurrency() int    { return c.FetchConcurrency }
func (c *Config) GetBrowserConcurrency() int  { return c.BrowserConcurrency }
func (c *Config) GetAllowPartialNAV() bool    { return c.AllowPartialNAV }
func (c *Config) GetTimezone() string         { return c.Timezone }

// ArchiveConfig implementation
func (c *Config) GetArchiveDir() string { return c.ArchiveDir }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetPipelineCronSpec() string {
	return c.PipelineCronSpec
}

// ColdStoreConfig implementation
func (c *Config) GetColdStoreEndpoint() string  { return c.ColdStoreEndpoint }
func (c *Config) GetColdStoreAccessKey() string { return c.ColdStoreAccessKey }
func (c *Config) GetColdStoreSecretKey() string { return c.ColdStoreSecretKey }
func (c *Config) GetColdStoreBucket() string    { return c.ColdStoreBucket }
func (c *Config) GetColdStoreUseSSL() bool      { return c.ColdStoreUseSSL }
func (c *Config) IsColdStoreEnabled() bool {
	return c.ColdStoreEndpoint != "" && c.ColdStoreBucket != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", ""),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", ""),
		DataDir:            getEnv("DATA_DIR", "data"),
		ArchiveDir:         getEnv("ARCHIVE_DIR", ""),
		GracePeriodDays:    mustInt(getEnv("GRACE_PERIOD_DAYS", "7")),
		FetchConcurrency:   mustInt(getEnv("FETCH_CONCURRENCY", "50")),
		BrowserConcurrency: mustInt(getEnv("BROWSER_CONCURRENCY", "5")),
		AllowPartialNAV:    isTrue(getEnv("ALLOW_PARTIAL_NAV", "false")),
		Timezone:           getEnv("PIPELINE_TIMEZONE", "Asia/Bangkok"),
		RedisURL:           getEnv("REDIS_URL", ""),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "pipeline"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "1")),
		PipelineCronSpec:   getEnv("PIPELINE_CRON", "0 19 * * *"),
		ColdStoreEndpoint:  getEnv("COLD_STORE_ENDPOINT", ""),
		ColdStoreAccessKey: getEnv("COLD_STORE_ACCESS_KEY", ""),
		ColdStoreSecretKey: getEnv("COLD_STORE_SECRET_KEY", ""),
		ColdStoreBucket:    getEnv("COLD_STORE_BUCKET", ""),
		ColdStoreUseSSL:    isTrue(getEnv("COLD_STORE_USE_SSL", "false")),
	}

	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = cfg.DataDir + string(os.PathSeparator) + "archive"
	}

	if cfg.DBUser == "" || cfg.DBPassword == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("DB_USER, DB_PASSWORD and DB_NAME are required")
	}
	if cfg.GracePeriodDays < 1 {
		return nil, fmt.Errorf("GRACE_PERIOD_DAYS must be at least 1")
	}
	if cfg.FetchConcurrency < 1 || cfg.BrowserConcurrency < 1 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY and BROWSER_CONCURRENCY must be at least 1")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("PIPELINE_TIMEZONE is invalid: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func isTrue(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
