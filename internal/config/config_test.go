package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadMap(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return load(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing THUCCHIEN_API_KEY returns error", func(t *testing.T) {
		_, err := loadMap(t, map[string]string{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAPIKeyRequired)
	})

	t.Run("blank THUCCHIEN_API_KEY returns error", func(t *testing.T) {
		_, err := loadMap(t, map[string]string{"THUCCHIEN_API_KEY": "   "})
		assert.ErrorIs(t, err, ErrAPIKeyRequired)
	})

	t.Run("API key present succeeds", func(t *testing.T) {
		cfg, err := loadMap(t, map[string]string{"THUCCHIEN_API_KEY": "test-api-key"})
		require.NoError(t, err)
		assert.Equal(t, "test-api-key", cfg.APIKey)
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{"THUCCHIEN_API_KEY": "k"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.thucchien.ai", cfg.APIBase)
	assert.Equal(t, "/gemini", cfg.LROPrefix)
	assert.Equal(t, "gemini-2.5-flash", cfg.DefaultModel)
	assert.InDelta(t, 1.0, cfg.Temperature, 1e-9)
	assert.Equal(t, "imagen-4", cfg.ImageModel)
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.TTSModel)
	assert.Equal(t, "Kore", cfg.TTSVoice)
	assert.Equal(t, "veo-3.0-generate-preview", cfg.VideoModel)
	assert.Equal(t, 10*time.Second, cfg.VideoPollInterval)
	assert.Equal(t, 60, cfg.VideoMaxPollAttempts)
	assert.Equal(t, 500, cfg.JobRetention)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "logs", cfg.LogsDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{
		"THUCCHIEN_API_KEY":       "custom-key",
		"THUCCHIEN_API_BASE":      "http://localhost:4000",
		"GATEWAY_LRO_PREFIX":      "/vertex",
		"VIDEO_POLL_INTERVAL":     "2s",
		"VIDEO_MAX_POLL_ATTEMPTS": "5",
		"TEMPERATURE":             "0.3",
		"PORT":                    "3000",
		"S3_BUCKET":               "my-bucket",
		"S3_REGION":               "us-east-1",
		"AWS_ACCESS_KEY_ID":       "access-key",
		"AWS_SECRET_ACCESS_KEY":   "secret-key",
		"LOG_FORMAT":              "json",
		"LOG_LEVEL":               "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", cfg.APIBase)
	assert.Equal(t, "/vertex", cfg.LROPrefix)
	assert.Equal(t, 2*time.Second, cfg.VideoPollInterval)
	assert.Equal(t, 5, cfg.VideoMaxPollAttempts)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
	assert.Equal(t, 3000, cfg.Port)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"port":           {"PORT": "not-a-number"},
		"poll interval":  {"VIDEO_POLL_INTERVAL": "soon"},
		"zero attempts":  {"VIDEO_MAX_POLL_ATTEMPTS": "0"},
		"negative delay": {"VIDEO_POLL_INTERVAL": "-1s"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			env["THUCCHIEN_API_KEY"] = "k"
			_, err := loadMap(t, env)
			require.Error(t, err)
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("THUCCHIEN_API_KEY", "env-key")
	t.Setenv("VIDEO_MODEL", "veo-3.0-fast-generate-preview")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "veo-3.0-fast-generate-preview", cfg.VideoModel)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		APIBase:            "https://api.thucchien.ai",
		APIKey:             "sk-secret-key-1234",
		AWSSecretAccessKey: "aws-secret",
		Port:               8080,
		DataDir:            "/tmp/data",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "https://api.thucchien.ai")
	assert.Contains(t, str, "/tmp/data")
	assert.Contains(t, str, "****1234")

	assert.NotContains(t, str, "sk-secret-key")
	assert.NotContains(t, str, "aws-secret")
}

func TestConfig_NewLoggerTo(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &Config{LogFormat: "json", LogLevel: "info"}
		cfg.NewLoggerTo(&buf).Info("test message", slog.String("k", "v"))

		assert.Contains(t, buf.String(), `"msg":"test message"`)
		assert.Contains(t, buf.String(), `"k":"v"`)
	})

	t.Run("text filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &Config{LogFormat: "text", LogLevel: "warn"}
		logger := cfg.NewLoggerTo(&buf)
		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	t.Run("stdout", func(t *testing.T) {
		require.NotNil(t, (&Config{}).NewLogger())
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{APIKey: "key", VideoPollInterval: time.Second, VideoMaxPollAttempts: 1}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing API key", func(t *testing.T) {
		cfg := &Config{VideoPollInterval: time.Second, VideoMaxPollAttempts: 1}
		assert.ErrorIs(t, cfg.Validate(), ErrAPIKeyRequired)
	})

	t.Run("empty poll budget", func(t *testing.T) {
		cfg := &Config{APIKey: "key"}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPollBudget)
	})
}

func TestCatalog_Default(t *testing.T) {
	cfg := &Config{}
	cat, err := cfg.LoadCatalog()
	require.NoError(t, err)

	assert.Len(t, cat.Models, 7)
	assert.True(t, cat.Has(ModelChat, "gemini-2.5-flash"))
	assert.True(t, cat.Has(ModelVideo, "veo-3.0-generate-preview"))
	assert.False(t, cat.Has(ModelChat, "imagen-4"))
	assert.Len(t, cat.ByKind(ModelSpeech), 2)
}

func TestCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - name: GPT 4o mini
    value: gpt-4o-mini
  - value: imagen-4
    kind: image
`), 0o644))

	cat, err := (&Config{ModelsFile: path}).LoadCatalog()
	require.NoError(t, err)

	require.Len(t, cat.Models, 2)
	assert.Equal(t, ModelChat, cat.Models[0].Kind)
	assert.Equal(t, "imagen-4", cat.Models[1].Name)
	assert.Equal(t, []Model{{Name: "imagen-4", Value: "imagen-4", Kind: ModelImage}}, cat.ByKind(ModelImage))
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":        "models: []",
		"not yaml":     "models: [",
		"no value":     "models:\n  - name: x\n",
		"unknown kind": "models:\n  - value: x\n    kind: music\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			require.Error(t, err)
		})
	}

	_, err := ParseCatalog([]byte("models: []"))
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestCatalog_MissingFile(t *testing.T) {
	_, err := (&Config{ModelsFile: filepath.Join(t.TempDir(), "nope.yaml")}).LoadCatalog()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
