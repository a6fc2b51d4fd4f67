// Package bootstrap wires the services shared by the HTTP server and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/chat"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/config"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/conversation"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/gateway"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/interaction"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/job"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/storage"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/video"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Catalog       *config.Catalog
	Conversations *conversation.FileStore
	Media         storage.Storage
	Interactions  *interaction.FileLog
	Gateway       *gateway.HTTPClient
	Orchestrator  *video.Orchestrator
	Chat          *chat.Service
	Videos        *job.VideoService
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	catalog, err := cfg.LoadCatalog()
	if err != nil {
		return nil, err
	}

	convs, err := conversation.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create conversation store: %w", err)
	}

	media, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	interactions, err := interaction.NewFileLog(cfg.LogsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("create interaction log: %w", err)
	}

	gw, err := gateway.NewClient(cfg.APIBase,
		gateway.WithAPIKey(cfg.APIKey),
		gateway.WithLROPrefix(cfg.LROPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}

	orch := video.New(gw, logger,
		video.WithModel(cfg.VideoModel),
		video.WithPollInterval(cfg.VideoPollInterval),
		video.WithMaxAttempts(cfg.VideoMaxPollAttempts),
	)

	chatSvc := chat.NewService(gw, convs, media, interactions, logger, chat.Defaults{
		ChatModel:   cfg.DefaultModel,
		Temperature: cfg.Temperature,
		ImageModel:  cfg.ImageModel,
		SpeechModel: cfg.TTSModel,
		Voice:       cfg.TTSVoice,
	})

	videos := job.NewVideoService(job.NewMemoryRepository(job.WithRetention(cfg.JobRetention)), convs, media, orch, interactions, logger)

	logger.Info("dependencies initialized",
		slog.String("api_base", gw.BaseURL()),
		slog.String("video_model", orch.Model()),
		slog.Duration("video_budget", orch.Budget()),
		slog.Int("models", len(catalog.Models)),
	)

	return &Dependencies{
		Catalog:       catalog,
		Conversations: convs,
		Media:         media,
		Interactions:  interactions,
		Gateway:       gw,
		Orchestrator:  orch,
		Chat:          chatSvc,
		Videos:        videos,
	}, nil
}

// Shutdown cancels running video jobs and waits for them to record their
// outcome.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	return d.Videos.Shutdown(ctx)
}

// initStorage creates the media backend: local disk, mirrored to S3 when a
// bucket is configured.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.DataDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 media mirror configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local media storage configured",
		slog.String("data_dir", cfg.DataDir),
	)
	return localStore, nil
}
