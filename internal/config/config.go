// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type VerifierConfig struct {
	BaseURL      string        `yaml:"base_url"`
	BypassKey    string        `yaml:"bypass_key"`
	BatchSize    int           `yaml:"batch_size"`    // ids per /api/batch submission
	PollInterval time.Duration `yaml:"poll_interval"` // delay between /api/check-status calls
	PollAttempts int           `yaml:"poll_attempts"` // poll budget per id
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

type DriverConfig struct {
	BaseURL  string        `yaml:"base_url"` // automation driver sidecar
	OfferURL string        `yaml:"offer_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type BatchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	CardsPerJob      int           `yaml:"cards_per_job"`
	DetectSettleWait time.Duration `yaml:"detect_settle_wait"`
	BindSettleWait   time.Duration `yaml:"bind_settle_wait"`
	SweepInterval    time.Duration `yaml:"sweep_interval"` // re-verify sweeper
	SweepStaleAfter  time.Duration `yaml:"sweep_stale_after"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type SecurityConfig struct {
	// EncryptionKey enables credential encryption at rest when set.
	// Must be 16, 24 or 32 bytes.
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Verifier VerifierConfig `yaml:"verifier"`
	Driver   DriverConfig   `yaml:"driver"`
	Batch    BatchConfig    `yaml:"batch"`
	Notify   NotifyConfig   `yaml:"notify"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Verifier.BaseURL == "" {
		cfg.Verifier.BaseURL = "https://batch.1key.me"
	}
	if cfg.Verifier.BatchSize <= 0 {
		cfg.Verifier.BatchSize = 5
	}
	if cfg.Verifier.PollInterval <= 0 {
		cfg.Verifier.PollInterval = 2 * time.Second
	}
	if cfg.Verifier.PollAttempts <= 0 {
		cfg.Verifier.PollAttempts = 60
	}
	if cfg.Verifier.HTTPTimeout <= 0 {
		cfg.Verifier.HTTPTimeout = 30 * time.Second
	}
	if cfg.Driver.Timeout <= 0 {
		cfg.Driver.Timeout = 45 * time.Second
	}
	if cfg.Batch.Concurrency <= 0 {
		cfg.Batch.Concurrency = 3
	}
	if cfg.Batch.CardsPerJob <= 0 {
		cfg.Batch.CardsPerJob = 1
	}
	if cfg.Batch.DetectSettleWait <= 0 {
		cfg.Batch.DetectSettleWait = 3 * time.Second
	}
	if cfg.Batch.BindSettleWait <= 0 {
		cfg.Batch.BindSettleWait = 5 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation. Dev mode runs on the in-memory backend and the
	// noop driver, so the external endpoints are optional there.
	if !dev {
		if cfg.Database.URL == "" {
			return nil, errors.New("database.url is required")
		}
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required")
		}
		if cfg.Driver.BaseURL == "" {
			return nil, errors.New("driver.base_url is required")
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
