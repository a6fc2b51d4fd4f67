// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrAPIKeyRequired is returned when THUCCHIEN_API_KEY is not set.
	ErrAPIKeyRequired = errors.New("config: THUCCHIEN_API_KEY is required")
	// ErrInvalidPollBudget is returned when the video poll interval or attempts are not positive.
	ErrInvalidPollBudget = errors.New("config: VIDEO_POLL_INTERVAL and VIDEO_MAX_POLL_ATTEMPTS must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Gateway settings
	APIBase   string `env:"THUCCHIEN_API_BASE, default=https://api.thucchien.ai" json:"api_base"`
	APIKey    string `env:"THUCCHIEN_API_KEY, required" json:"-"` // Masked in JSON
	LROPrefix string `env:"GATEWAY_LRO_PREFIX, default=/gemini" json:"lro_prefix"`

	// Model settings
	DefaultModel string  `env:"DEFAULT_MODEL, default=gemini-2.5-flash" json:"default_model"`
	Temperature  float64 `env:"TEMPERATURE, default=1.0" json:"temperature"`
	ImageModel   string  `env:"IMAGE_MODEL, default=imagen-4" json:"image_model"`
	TTSModel     string  `env:"TTS_MODEL, default=gemini-2.5-flash-preview-tts" json:"tts_model"`
	TTSVoice     string  `env:"TTS_VOICE, default=Kore" json:"tts_voice"`
	ModelsFile   string  `env:"MODELS_FILE" json:"models_file,omitempty"`

	// Video settings
	VideoModel           string        `env:"VIDEO_MODEL, default=veo-3.0-generate-preview" json:"video_model"`
	VideoPollInterval    time.Duration `env:"VIDEO_POLL_INTERVAL, default=10s" json:"video_poll_interval"`
	VideoMaxPollAttempts int           `env:"VIDEO_MAX_POLL_ATTEMPTS, default=60" json:"video_max_poll_attempts"`
	JobRetention         int           `env:"JOB_RETENTION, default=500" json:"job_retention"` // finished jobs kept in memory

	// Storage settings
	DataDir string `env:"DATA_DIR, default=data" json:"data_dir"`
	LogsDir string `env:"LOGS_DIR, default=logs" json:"logs_dir"`

	// Server settings
	Port        int      `env:"PORT, default=8080" json:"port"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_origins"`

	// Optional S3 mirror for generated media
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"` // S3-compatible services
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads a .env file if present, then configuration from environment
// variables. Variables already set in the environment win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: lookuper}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "THUCCHIEN_API_KEY") {
			return nil, ErrAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrAPIKeyRequired
	}
	if c.VideoPollInterval <= 0 || c.VideoMaxPollAttempts <= 0 {
		return ErrInvalidPollBudget
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w. The CLI logs to stderr so stdout
// stays free for conversation output.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{APIBase: %s, APIKey: %s, LROPrefix: %s, DefaultModel: %s, VideoModel: %s, VideoPollInterval: %s, VideoMaxPollAttempts: %d, DataDir: %s, LogsDir: %s, Port: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.APIBase,
		maskKey(c.APIKey),
		c.LROPrefix,
		c.DefaultModel,
		c.VideoModel,
		c.VideoPollInterval,
		c.VideoMaxPollAttempts,
		c.DataDir,
		c.LogsDir,
		c.Port,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
