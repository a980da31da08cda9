package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Transcription TranscriptionConfig `yaml:"transcription"`
	Storage       StorageConfig       `yaml:"storage"`
	Batch         BatchConfig         `yaml:"batch"`
}

// TranscriptionConfig holds provider-related configuration
type TranscriptionConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig holds object-storage (R2) configuration
type StorageConfig struct {
	AccountID       string        `yaml:"account_id"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Bucket          string        `yaml:"bucket"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

// BatchConfig holds worker-pool defaults; command-line flags take
// precedence over these values.
type BatchConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ItemTimeout  time.Duration `yaml:"item_timeout"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Transcription: TranscriptionConfig{
			APIKey:  getEnv("ASSEMBLYAI_API_KEY", ""),
			BaseURL: getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
			Timeout: getEnvAsDuration("ASSEMBLYAI_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
			PresignTTL:      getEnvAsDuration("R2_PRESIGN_TTL", time.Hour),
		},
		Batch: BatchConfig{
			Workers:      getEnvAsInt("TRANSCRIBE_WORKERS", 5),
			PollInterval: getEnvAsDuration("TRANSCRIBE_POLL_INTERVAL", 2*time.Second),
			ItemTimeout:  getEnvAsDuration("TRANSCRIBE_ITEM_TIMEOUT", time.Hour),
		},
	}
}

// ApplyFile overlays settings from a YAML file onto the environment-derived
// configuration. An empty path is a no-op.
func (c *Config) ApplyFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "cannot read config file "+path, ErrConfig)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError("CONFIG_ERROR", "cannot parse config file "+path, ErrConfig)
	}
	return nil
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

// Validate checks the configuration required by every run.
func (c *Config) Validate() error {
	if c.Transcription.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "ASSEMBLYAI_API_KEY is required", ErrConfig)
	}
	if c.Batch.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "worker count must be at least 1", ErrConfig)
	}
	if c.Batch.PollInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "poll interval must be positive", ErrConfig)
	}
	return nil
}

// ValidateStorage checks the object-storage credentials; only runs that
// enumerate a remote bucket need these.
func (c *Config) ValidateStorage() error {
	if c.Storage.AccountID == "" {
		return NewAppError("CONFIG_ERROR", "R2_ACCOUNT_ID is required", ErrConfig)
	}
	if c.Storage.AccessKeyID == "" {
		return NewAppError("CONFIG_ERROR", "R2_ACCESS_KEY_ID is required", ErrConfig)
	}
	if c.Storage.SecretAccessKey == "" {
		return NewAppError("CONFIG_ERROR", "R2_SECRET_ACCESS_KEY is required", ErrConfig)
	}
	return nil
}
