package main

import (
	"fmt"
	"os"
	"time"

	"codegrader/internal/common/auth"
	"codegrader/internal/common/cache"
	"codegrader/internal/common/db"
	"codegrader/internal/common/mq"
	"codegrader/internal/common/storage"
	"codegrader/internal/judge/client"
	judgesvc "codegrader/internal/judge/service"
	"codegrader/internal/submit/grading"
	"codegrader/internal/submit/service"
	"codegrader/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JudgeConfig holds the judge endpoint and the per-request dispatch limits.
type JudgeConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	AuthToken     string        `yaml:"authToken"`
	RapidAPIKey   string        `yaml:"rapidAPIKey"`
	RapidAPIHost  string        `yaml:"rapidAPIHost"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxParallel   int           `yaml:"maxParallel"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
}

func (c JudgeConfig) clientConfig() client.Config {
	return client.Config{
		BaseURL:      c.BaseURL,
		AuthToken:    c.AuthToken,
		Timeout:      c.Timeout,
		RapidAPIKey:  c.RapidAPIKey,
		RapidAPIHost: c.RapidAPIHost,
	}
}

func (c JudgeConfig) dispatchConfig() judgesvc.DispatchConfig {
	return judgesvc.DispatchConfig{
		MaxParallel:   c.MaxParallel,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
		Timeout:       c.Timeout,
	}
}

// SubmitConfig holds submission settings.
type SubmitConfig struct {
	BatchMaxSize       int                   `yaml:"batchMaxSize"`
	BatchConcurrency   int                   `yaml:"batchConcurrency"`
	BatchStagger       *time.Duration        `yaml:"batchStagger"` // 0 disables, unset means 20ms
	IdempotencyTTL     time.Duration         `yaml:"idempotencyTTL"`
	SubmissionCacheTTL time.Duration         `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration         `yaml:"submissionEmptyTTL"`
	SourceBucket       string                `yaml:"sourceBucket"`
	SourceKeyPrefix    string                `yaml:"sourceKeyPrefix"`
	ArchiveSource      bool                  `yaml:"archiveSource"`
	EventsTopic        string                `yaml:"eventsTopic"`
	MaxCodeBytes       int                   `yaml:"maxCodeBytes"`
	Timeouts           service.TimeoutConfig `yaml:"timeouts"`
}

// GradingConfig selects the output comparison mode.
type GradingConfig struct {
	Comparison string `yaml:"comparison"`
}

// AppConfig holds submit-service configuration. Redis, Kafka and MinIO are
// optional and left disabled when their address is empty.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Database db.Config           `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Judge    JudgeConfig         `yaml:"judge"`
	Auth     auth.Config         `yaml:"auth"`
	Submit   SubmitConfig        `yaml:"submit"`
	Grading  GradingConfig       `yaml:"grading"`
}

// loadYAML reads path, expands ${VAR} references and decodes it into out.
// A .env file next to the working directory is loaded first when present.
func loadYAML(path string, out interface{}) error {
	_ = godotenv.Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Judge.BaseURL == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Submit.BatchMaxSize == 0 {
		cfg.Submit.BatchMaxSize = 20
	}
	if cfg.Submit.BatchConcurrency == 0 {
		cfg.Submit.BatchConcurrency = 5
	}
	if cfg.Submit.BatchStagger == nil {
		stagger := service.DefaultBatchStagger
		cfg.Submit.BatchStagger = &stagger
	}
	if cfg.Submit.IdempotencyTTL == 0 {
		cfg.Submit.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Submit.SubmissionCacheTTL == 0 {
		cfg.Submit.SubmissionCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.SubmissionEmptyTTL == 0 {
		cfg.Submit.SubmissionEmptyTTL = 5 * time.Minute
	}
	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 256 * 1024
	}
	if cfg.Submit.SourceKeyPrefix == "" {
		cfg.Submit.SourceKeyPrefix = "submissions"
	}
	if cfg.Submit.SourceBucket == "" {
		cfg.Submit.SourceBucket = cfg.MinIO.Bucket
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}

	if cfg.Grading.Comparison == "" {
		cfg.Grading.Comparison = grading.ComparisonLenient
	}
	if cfg.Grading.Comparison != grading.ComparisonLenient && cfg.Grading.Comparison != grading.ComparisonStrict {
		return nil, fmt.Errorf("unknown grading comparison: %s", cfg.Grading.Comparison)
	}
	return &cfg, nil
}
