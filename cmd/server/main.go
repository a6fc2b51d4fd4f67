// Package main provides the entry point for the conversation API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/bootstrap"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/config"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from .env and the environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting conversation API",
		slog.Int("port", cfg.Port),
		slog.String("api_base", cfg.APIBase),
		slog.String("data_dir", cfg.DataDir),
		slog.String("logs_dir", cfg.LogsDir),
		slog.String("video_model", cfg.VideoModel),
		slog.Duration("video_poll_interval", cfg.VideoPollInterval),
		slog.Int("video_max_poll_attempts", cfg.VideoMaxPollAttempts),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Conversations, deps.Chat, deps.Videos, deps.Media, deps.Catalog, logger)
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: cfg.CORSOrigins})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // chat and image turns are synchronous
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	// Running video jobs end CANCELLED with an error turn.
	if err := deps.Shutdown(ctx); err != nil {
		return fmt.Errorf("video jobs did not stop: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
