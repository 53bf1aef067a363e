package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database DatabaseConfig
	API      APIConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// APIConfig for the NS disruptions gateway
type APIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// PipelineConfig controls one ETL cycle
type PipelineConfig struct {
	// FetchLookback bounds the `since` window on the very first run,
	// before any successful run exists to anchor on
	FetchLookback time.Duration
	// RawRetentionDays prunes raw payloads older than N days; 0 keeps them forever
	RawRetentionDays int
	// StatsBackfillDays re-derives daily stats for the trailing window on each run
	StatsBackfillDays int
	// AlertWebhookURL, when set, receives a message on run failure
	AlertWebhookURL string
}

type LoggingConfig struct {
	Level    string
	FilePath string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "nlrail"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			BaseURL: getEnv("NS_API_BASE_URL", "https://gateway.apiportal.ns.nl"),
			APIKey:  getEnv("NS_API_KEY", ""),
			Timeout: getDurationEnv("NS_API_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			FetchLookback:     getDurationEnv("FETCH_LOOKBACK", 48*time.Hour),
			RawRetentionDays:  getIntEnv("RAW_RETENTION_DAYS", 0),
			StatsBackfillDays: getIntEnv("STATS_BACKFILL_DAYS", 7),
			AlertWebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "nlrail.log"),
		},
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c *DatabaseConfig) Validate() error {
	if c.Host == "" || c.Port == "" {
		return fmt.Errorf("database host and port are required")
	}
	if c.User == "" || c.DBName == "" {
		return fmt.Errorf("database user and name are required")
	}
	return nil
}

func (c *APIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("NS_API_KEY is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("NS_API_BASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
