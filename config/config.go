package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// StorageConfig selects the object store backend. Backend is "gcs" or
// "local"; local keeps files on disk for development.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	Bucket          string `mapstructure:"bucket"`
	CDNDomain       string `mapstructure:"cdn_domain"`
	CredentialsFile string `mapstructure:"credentials_file"`
	LocalDir        string `mapstructure:"local_dir"`
}

type OCRConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
	MaxFailures    int     `mapstructure:"max_failures"`
}

type IntakeConfig struct {
	MaxFileSizeBytes int64    `mapstructure:"max_file_size_bytes"`
	MaxBatchSize     int      `mapstructure:"max_batch_size"`
	AcceptedTypes    []string `mapstructure:"accepted_types"`
}

type OutboxConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	BatchSize           int `mapstructure:"batch_size"`
	MaxRetries          int `mapstructure:"max_retries"`
}

type SMTPConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"`
	PharmacyInbox string `mapstructure:"pharmacy_inbox"`
}

type RetentionConfig struct {
	ValidationLogDays   int `mapstructure:"validation_log_days"`
	ProcessedOutboxDays int `mapstructure:"processed_outbox_days"`
	SweepIntervalHours  int `mapstructure:"sweep_interval_hours"`
}

func (c OCRConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c OutboxConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
