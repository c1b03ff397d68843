package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Store      StoreConfig      `mapstructure:"store"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Locations  LocationsConfig  `mapstructure:"locations"`
	Tiers      TiersConfig      `mapstructure:"tiers"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	CORSAllowOrigin []string      `mapstructure:"cors_allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	UploadRate      float64       `mapstructure:"upload_rate"`
	UploadBurst     int           `mapstructure:"upload_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures Postgres. An empty URL selects in-memory repositories in dev.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// StoreConfig selects and configures the image store.
type StoreConfig struct {
	Type        string `mapstructure:"type"`
	LocalDir    string `mapstructure:"local_dir"`
	AWSRegion   string `mapstructure:"aws_region"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	SSEKMSKeyID string `mapstructure:"sse_kms_key_id"`
}

// QueueConfig configures the optional SQS job queue.
type QueueConfig struct {
	SQSURL            string        `mapstructure:"sqs_url"`
	Region            string        `mapstructure:"region"`
	VisibilitySeconds int           `mapstructure:"visibility_seconds"`
	Concurrency       int           `mapstructure:"concurrency"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// PoolConfig configures the processing worker pool.
type PoolConfig struct {
	Size          int           `mapstructure:"size"`
	QueueSize     int           `mapstructure:"queue_size"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// ExtractionConfig configures both extraction backends.
type ExtractionConfig struct {
	AnthropicAPIKey    string        `mapstructure:"anthropic_api_key"`
	AnthropicModel     string        `mapstructure:"anthropic_model"`
	MaxTokens          int64         `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	TesseractLanguages []string      `mapstructure:"tesseract_languages"`
	OCREnabled         bool          `mapstructure:"ocr_enabled"`
}

// LocationsConfig configures the location resolver.
type LocationsConfig struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	MinConfidence float64       `mapstructure:"min_confidence"`
}

// TiersConfig holds the confidence tier thresholds.
type TiersConfig struct {
	Auto   float64 `mapstructure:"auto"`
	Review float64 `mapstructure:"review"`
}

// Load reads configuration from an optional config file, optional .env files
// and SCHED_* environment variables.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, eris.Wrap(err, "config: read file")
		}
	}
	if err := mergeEnvFiles(".env", "cmd/.env"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "config: unmarshal")
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Store.Type = normalizeStoreType(cfg.Store.Type)
	cfg.Server.CORSAllowOrigin = splitAndTrim(cfg.Server.CORSAllowOrigin)
	cfg.Extraction.TesseractLanguages = splitAndTrim(cfg.Extraction.TesseractLanguages)
	if cfg.Extraction.AnthropicAPIKey == "" {
		cfg.Extraction.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.upload_rate", 0.5)
	v.SetDefault("server.upload_burst", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.url", "")
	v.SetDefault("store.type", "local")
	v.SetDefault("store.local_dir", "./data")
	v.SetDefault("store.aws_region", "")
	v.SetDefault("store.s3_bucket", "")
	v.SetDefault("store.s3_prefix", "contributions/")
	v.SetDefault("store.sse_kms_key_id", "")
	v.SetDefault("queue.sqs_url", "")
	v.SetDefault("queue.region", "us-east-1")
	v.SetDefault("queue.visibility_seconds", 600)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.shutdown_timeout", 30*time.Second)
	v.SetDefault("pool.size", 5)
	v.SetDefault("pool.queue_size", 100)
	v.SetDefault("pool.shutdown_grace", 60*time.Second)
	v.SetDefault("extraction.anthropic_api_key", "")
	v.SetDefault("extraction.anthropic_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("extraction.max_tokens", 4096)
	v.SetDefault("extraction.timeout", 90*time.Second)
	v.SetDefault("extraction.retry_attempts", 2)
	v.SetDefault("extraction.requests_per_second", 2.0)
	v.SetDefault("extraction.tesseract_languages", []string{"eng"})
	v.SetDefault("extraction.ocr_enabled", true)
	v.SetDefault("locations.cache_ttl", 30*time.Minute)
	v.SetDefault("locations.min_confidence", 0.5)
	v.SetDefault("tiers.auto", 0.6)
	v.SetDefault("tiers.review", 0.3)
}

// IsDevLike reports whether env allows in-memory fallbacks.
func IsDevLike(env string) bool {
	switch normalizeEnv(env) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func splitAndTrim(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, p := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
