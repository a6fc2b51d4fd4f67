package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates the HTTP router for the conversation API.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /models", h.ListModels)

	mux.HandleFunc("GET /conversations", h.ListConversations)
	mux.HandleFunc("POST /conversations", h.CreateConversation)
	mux.HandleFunc("GET /conversations/{id}", h.GetConversation)
	mux.HandleFunc("PATCH /conversations/{id}", h.RenameConversation)
	mux.HandleFunc("POST /conversations/{id}/messages", h.SendMessage)
	mux.HandleFunc("POST /conversations/{id}/images", h.GenerateImage)
	mux.HandleFunc("POST /conversations/{id}/speech", h.Speak)
	mux.HandleFunc("POST /conversations/{id}/videos", h.CreateVideo)
	mux.HandleFunc("GET /conversations/{id}/jobs", h.ListJobs)
	mux.HandleFunc("GET /conversations/{id}/media/{kind}/{file}", h.GetMedia)

	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
