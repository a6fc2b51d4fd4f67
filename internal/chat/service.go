// Package chat runs the single-shot conversation turns: chat completions,
// image generation and text-to-speech. Each turn is persisted to the
// conversation store and recorded in the interaction log.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/conversation"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/gateway"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/interaction"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/storage"
)

// ErrEmptyInput is returned when a turn has no text.
var ErrEmptyInput = errors.New("chat: input is empty")

// emptyReply replaces a completion without content.
const emptyReply = "(empty response)"

// Gateway is the subset of the gateway client used for single-shot turns.
type Gateway interface {
	ChatCompletions(ctx context.Context, r gateway.ChatRequest) (*gateway.ChatResponse, error)
	GenerateImage(ctx context.Context, r gateway.ImageRequest) (*gateway.ImageResponse, error)
	Speech(ctx context.Context, r gateway.SpeechRequest) ([]byte, error)
}

// Defaults are the models and parameters used when a turn leaves them unset.
type Defaults struct {
	ChatModel   string
	Temperature float64
	ImageModel  string
	SpeechModel string
	Voice       string
}

// SendInput is one chat completion turn.
type SendInput struct {
	Text        string
	Model       string
	Temperature *float64
	WebSearch   bool
}

// ImageInput is one image generation turn.
type ImageInput struct {
	Prompt string
	Model  string
	Size   string
}

// SpeechInput is one text-to-speech turn.
type SpeechInput struct {
	Text   string
	Model  string
	Voice  string
	Format string
}

// Result is the assistant turn produced by a service call.
type Result struct {
	Message conversation.Message `json:"message"`
	Model   string               `json:"model"`
	LogPath string               `json:"log_path,omitempty"`
}

// Service runs chat, image and speech turns against the gateway.
type Service struct {
	gw       Gateway
	convs    conversation.Store
	media    storage.Storage
	rec      interaction.Recorder
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time
}

// NewService creates a Service. A nil recorder discards interaction events.
func NewService(gw Gateway, convs conversation.Store, media storage.Storage, rec interaction.Recorder, logger *slog.Logger, defaults Defaults) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = interaction.Discard{}
	}
	return &Service{
		gw:       gw,
		convs:    convs,
		media:    media,
		rec:      rec,
		logger:   logger,
		defaults: defaults,
		now:      time.Now,
	}
}

// Send appends the user turn, sends the whole history to the chat endpoint
// and appends the reply. On a gateway failure the user turn stays recorded
// and no assistant turn is written.
func (s *Service) Send(ctx context.Context, conversationID string, in SendInput) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	model := pick(in.Model, s.defaults.ChatModel)
	temperature := s.defaults.Temperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}

	conv, err := s.convs.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.convs.AppendMessage(ctx, conv, conversation.RoleUser, text, conversation.TypeText); err != nil {
		return nil, fmt.Errorf("record prompt: %w", err)
	}

	history := historyOf(conv)
	req := map[string]any{
		"model":          model,
		"temperature":    temperature,
		"use_web_search": in.WebSearch,
		"messages":       history,
	}
	if in.WebSearch {
		req["web_search_options"] = map[string]string{"search_context_size": "medium"}
	}

	started := s.now()
	resp, err := s.gw.ChatCompletions(ctx, gateway.ChatRequest{
		Model:       model,
		Messages:    history,
		Temperature: temperature,
		WebSearch:   in.WebSearch,
	})
	latency := time.Since(started)
	if err != nil {
		return nil, s.failed(ctx, "chat.completions", conv.ID, model, req, err, latency)
	}

	reply := resp.Content
	if strings.TrimSpace(reply) == "" {
		reply = emptyReply
	}
	if err := s.convs.AppendMessage(ctx, conv, conversation.RoleAssistant, reply, conversation.TypeText); err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}

	logPath := s.rec.Record(ctx, interaction.Event{
		Type:           interaction.TypeAPICall,
		API:            "chat.completions",
		ConversationID: conv.ID,
		Model:          model,
		Request:        req,
		Response:       resp.Raw,
		Latency:        latency,
	})

	s.logger.Info("chat turn completed",
		slog.String("conversation_id", conv.ID),
		slog.String("model", model),
		slog.Duration("latency", latency),
	)
	return &Result{Message: findTurn(conv, conversation.TypeText, reply, ""), Model: model, LogPath: logPath}, nil
}

// GenerateImage appends the prompt, asks the gateway for one image, stores
// it under the conversation and appends an image turn.
func (s *Service) GenerateImage(ctx context.Context, conversationID string, in ImageInput) (*Result, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, ErrEmptyInput
	}
	model := pick(in.Model, s.defaults.ImageModel)

	conv, err := s.convs.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.convs.AppendMessage(ctx, conv, conversation.RoleUser, prompt, conversation.TypeText); err != nil {
		return nil, fmt.Errorf("record prompt: %w", err)
	}

	req := map[string]any{"model": model, "prompt": prompt, "size": in.Size}

	started := s.now()
	resp, err := s.gw.GenerateImage(ctx, gateway.ImageRequest{Model: model, Prompt: prompt, Size: in.Size})
	latency := time.Since(started)
	if err != nil {
		return nil, s.failed(ctx, "images.generations", conv.ID, model, req, err, latency)
	}

	content := prompt
	if resp.RevisedPrompt != "" {
		content = resp.RevisedPrompt
	}
	att, err := s.store(ctx, conv.ID, storage.KindImages, "image", resp.Data)
	if err != nil {
		return nil, s.failed(ctx, "images.generations", conv.ID, model, req, err, latency)
	}
	if err := s.convs.AppendAttachment(ctx, conv, conversation.RoleAssistant, content, conversation.TypeImage, att); err != nil {
		s.discard(ctx, att.Path)
		return nil, fmt.Errorf("record image turn: %w", err)
	}

	logPath := s.rec.Record(ctx, interaction.Event{
		Type:           interaction.TypeAPICall,
		API:            "images.generations",
		ConversationID: conv.ID,
		Model:          model,
		Request:        req,
		Response: map[string]any{
			"path":           att.Path,
			"url":            att.URL,
			"mime_type":      att.MIMEType,
			"bytes":          len(resp.Data),
			"revised_prompt": resp.RevisedPrompt,
		},
		Latency: latency,
	})

	s.logger.Info("image turn completed",
		slog.String("conversation_id", conv.ID),
		slog.String("path", att.Path),
		slog.Duration("latency", latency),
	)
	return &Result{Message: findTurn(conv, conversation.TypeImage, content, att.Path), Model: model, LogPath: logPath}, nil
}

// Speak appends the text, converts it to audio and appends an audio turn.
func (s *Service) Speak(ctx context.Context, conversationID string, in SpeechInput) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	model := pick(in.Model, s.defaults.SpeechModel)
	voice := pick(in.Voice, s.defaults.Voice)

	conv, err := s.convs.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.convs.AppendMessage(ctx, conv, conversation.RoleUser, text, conversation.TypeText); err != nil {
		return nil, fmt.Errorf("record prompt: %w", err)
	}

	req := map[string]any{"model": model, "input": text, "voice": voice, "format": in.Format}

	started := s.now()
	audio, err := s.gw.Speech(ctx, gateway.SpeechRequest{Model: model, Input: text, Voice: voice, Format: in.Format})
	latency := time.Since(started)
	if err != nil {
		return nil, s.failed(ctx, "audio.speech", conv.ID, model, req, err, latency)
	}

	att, err := s.store(ctx, conv.ID, storage.KindAudio, "speech", audio)
	if err != nil {
		return nil, s.failed(ctx, "audio.speech", conv.ID, model, req, err, latency)
	}
	if err := s.convs.AppendAttachment(ctx, conv, conversation.RoleAssistant, text, conversation.TypeAudio, att); err != nil {
		s.discard(ctx, att.Path)
		return nil, fmt.Errorf("record audio turn: %w", err)
	}

	logPath := s.rec.Record(ctx, interaction.Event{
		Type:           interaction.TypeAPICall,
		API:            "audio.speech",
		ConversationID: conv.ID,
		Model:          model,
		Request:        req,
		Response: map[string]any{
			"path":      att.Path,
			"url":       att.URL,
			"mime_type": att.MIMEType,
			"bytes":     len(audio),
		},
		Latency: latency,
	})

	s.logger.Info("speech turn completed",
		slog.String("conversation_id", conv.ID),
		slog.String("path", att.Path),
		slog.Duration("latency", latency),
	)
	return &Result{Message: findTurn(conv, conversation.TypeAudio, text, att.Path), Model: model, LogPath: logPath}, nil
}

// store saves generated media as "<prefix>_<unix><ext>" under the
// conversation. A failed remote mirror keeps the local copy.
func (s *Service) store(ctx context.Context, conversationID, kind, prefix string, data []byte) (conversation.Attachment, error) {
	mt := mimetype.Detect(data)
	name := fmt.Sprintf("%s_%d%s", prefix, s.now().Unix(), mt.Extension())

	obj, err := s.media.Save(ctx, storage.MediaKey(conversationID, kind, name), bytes.NewReader(data))
	if err != nil && !errors.Is(err, storage.ErrMirrorFailed) {
		return conversation.Attachment{}, fmt.Errorf("store %s: %w", kind, err)
	}
	if err != nil {
		s.logger.Warn("media stored locally only",
			slog.String("key", obj.Key),
			slog.String("error", err.Error()),
		)
	}

	return conversation.Attachment{
		Path:     obj.Key,
		URL:      obj.URL,
		Filename: name,
		MIMEType: mt.String(),
	}, nil
}

// discard removes stored media that no turn references.
func (s *Service) discard(ctx context.Context, key string) {
	if err := s.media.Delete(context.WithoutCancel(ctx), []string{key}); err != nil {
		s.logger.Warn("failed to remove orphaned media",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// failed records an api.error event and returns err with the log path.
func (s *Service) failed(ctx context.Context, api, conversationID, model string, req any, err error, latency time.Duration) error {
	kind := gateway.Classify(err)
	logPath := s.rec.Record(context.WithoutCancel(ctx), interaction.Event{
		Type:           interaction.TypeAPIError,
		API:            api,
		ConversationID: conversationID,
		Model:          model,
		Request:        req,
		Error: map[string]any{
			"kind":    string(kind),
			"message": err.Error(),
		},
		Latency: latency,
	})

	s.logger.Warn("gateway call failed",
		slog.String("api", api),
		slog.String("conversation_id", conversationID),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
	return &TurnError{API: api, LogPath: logPath, Err: err}
}

// TurnError reports a failed turn and where it was logged.
type TurnError struct {
	API     string
	LogPath string
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("chat: %s failed: %v", e.API, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// historyOf converts the stored turns to gateway messages. Error turns are
// local notes and are not sent.
func historyOf(conv *conversation.Conversation) []gateway.ChatMessage {
	out := make([]gateway.ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.Type == conversation.TypeError {
			continue
		}
		out = append(out, gateway.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// findTurn returns the newest assistant turn matching the arguments. Other
// writers may have appended after it.
func findTurn(conv *conversation.Conversation, typ conversation.MessageType, content, path string) conversation.Message {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if m.Role == conversation.RoleAssistant && m.Type == typ && m.Content == content && m.Path == path {
			return m
		}
	}
	return conversation.Message{Role: conversation.RoleAssistant, Type: typ, Content: content, Path: path}
}

func pick(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
