package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Storage  StorageConfig
	Job      JobConfig
	Pipeline PipelineConfig
	Archive  ArchiveConfig
}

// StorageConfig holds object-store configuration.
type StorageConfig struct {
	BaseURL     string
	ClientName  string
	Token       string
	HTTPTimeout time.Duration
}

// JobConfig holds job-service configuration.
type JobConfig struct {
	Endpoint     string
	APIKey       string
	RemoteOutDir string
	HTTPTimeout  time.Duration
}

// PipelineConfig holds orchestration tuning knobs.
type PipelineConfig struct {
	PollInterval      time.Duration
	StallTimeout      time.Duration
	PollRetries       int
	UploadConcurrency int
	OutputDir         string
}

// ArchiveConfig holds run-archive configuration.
type ArchiveConfig struct {
	DSN string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BaseURL:     getEnv("STORAGE_BASE_URL", ""),
			ClientName:  getEnv("CLIENT_NAME", ""),
			Token:       getEnv("STORAGE_TOKEN", ""),
			HTTPTimeout: getEnvAsDuration("STORAGE_HTTP_TIMEOUT", 60*time.Second),
		},
		Job: JobConfig{
			Endpoint:     getEnv("JOB_ENDPOINT", ""),
			APIKey:       getEnv("JOB_API_KEY", ""),
			RemoteOutDir: getEnv("JOB_REMOTE_OUT_DIR", "csv"),
			HTTPTimeout:  getEnvAsDuration("JOB_HTTP_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			PollInterval:      getEnvAsDuration("POLL_INTERVAL", 3*time.Second),
			StallTimeout:      getEnvAsDuration("STALL_TIMEOUT", 5*time.Minute),
			PollRetries:       getEnvAsInt("POLL_RETRIES", 3),
			UploadConcurrency: getEnvAsInt("UPLOAD_CONCURRENCY", 4),
			OutputDir:         getEnv("OUTPUT_DIR", "./out"),
		},
		Archive: ArchiveConfig{
			DSN: getEnv("ARCHIVE_DSN", "file:runs.db"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Storage.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_BASE_URL is required", ErrInvalidInput)
	}
	if c.Storage.ClientName == "" {
		return NewAppError("CONFIG_ERROR", "CLIENT_NAME is required", ErrInvalidInput)
	}
	if c.Job.Endpoint == "" {
		return NewAppError("CONFIG_ERROR", "JOB_ENDPOINT is required", ErrInvalidInput)
	}
	if c.Pipeline.PollInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "POLL_INTERVAL must be positive", ErrInvalidInput)
	}
	if c.Pipeline.StallTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "STALL_TIMEOUT must be positive", ErrInvalidInput)
	}
	return nil
}
