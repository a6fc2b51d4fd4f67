// Package server provides the HTTP presentation layer: handlers, middleware,
// routes and DTOs kept separate from the domain types.
package server

import (
	"time"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/config"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/conversation"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/job"
)

// CreateConversationRequest is the body of POST /conversations.
type CreateConversationRequest struct {
	// Name is optional; a timestamped name is used when empty.
	Name string `json:"name" validate:"max=200"`
}

// RenameConversationRequest is the body of PATCH /conversations/{id}.
type RenameConversationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Text        string   `json:"text" validate:"required,max=100000"`
	Model       string   `json:"model" validate:"max=200"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	WebSearch   bool     `json:"web_search"`
}

// GenerateImageRequest is the body of POST /conversations/{id}/images.
type GenerateImageRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8000"`
	Model  string `json:"model" validate:"max=200"`
	Size   string `json:"size" validate:"omitempty,oneof=256x256 512x512 1024x1024 1792x1024 1024x1792"`
}

// SpeechRequest is the body of POST /conversations/{id}/speech.
type SpeechRequest struct {
	Text   string `json:"text" validate:"required,max=8000"`
	Model  string `json:"model" validate:"max=200"`
	Voice  string `json:"voice" validate:"max=100"`
	Format string `json:"format" validate:"omitempty,oneof=wav mp3 opus aac flac pcm"`
}

// CreateVideoRequest is the body of POST /conversations/{id}/videos.
// Enum and duration rules are enforced by video normalization.
type CreateVideoRequest struct {
	Prompt                string   `json:"prompt"`
	NegativePrompt        string   `json:"negative_prompt"`
	AspectRatio           string   `json:"aspect_ratio"`
	DurationSeconds       int      `json:"duration_seconds"`
	Resolution            string   `json:"resolution"`
	PersonGeneration      string   `json:"person_generation"`
	FirstFrameBase64      string   `json:"first_frame_base64" validate:"omitempty,base64"`
	LastFrameBase64       string   `json:"last_frame_base64" validate:"omitempty,base64"`
	ReferenceImagesBase64 []string `json:"reference_images_base64" validate:"dive,base64"`
}

// ConversationsResponse lists conversation summaries, newest first.
type ConversationsResponse struct {
	Conversations []conversation.Summary `json:"conversations"`
}

// ModelsResponse lists the model catalog.
type ModelsResponse struct {
	Models []config.Model `json:"models"`
}

// JobResponse is the HTTP view of a video job.
type JobResponse struct {
	ID              string     `json:"id"`
	ConversationID  string     `json:"conversation_id"`
	Status          string     `json:"status"`
	Prompt          string     `json:"prompt,omitempty"`
	Model           string     `json:"model,omitempty"`
	Phase           string     `json:"phase,omitempty"`
	ErrorKind       string     `json:"error_kind,omitempty"`
	Error           string     `json:"error,omitempty"`
	OperationHandle string     `json:"operation,omitempty"`
	Attempts        int        `json:"attempts"`
	ArtifactID      string     `json:"artifact_id,omitempty"`
	MediaKey        string     `json:"media_key,omitempty"`
	MediaURL        string     `json:"media_url,omitempty"`
	LogPath         string     `json:"log_path,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobsResponse lists jobs, newest first.
type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

func newJobResponse(j *job.Job) JobResponse {
	c := j.Clone()
	resp := JobResponse{
		ID:              c.ID,
		ConversationID:  c.ConversationID,
		Status:          string(c.Status),
		Prompt:          c.Prompt,
		Model:           c.Model,
		Phase:           c.Phase,
		ErrorKind:       c.ErrorKind,
		Error:           c.Error,
		OperationHandle: c.OperationHandle,
		Attempts:        c.Attempts,
		ArtifactID:      c.ArtifactID,
		MediaKey:        c.MediaKey,
		MediaURL:        c.MediaURL,
		LogPath:         c.LogPath,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if !c.CompletedAt.IsZero() {
		t := c.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// LogPath points at the interaction log record, when one was written.
	LogPath string `json:"log_path,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
