package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/chat"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/config"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/conversation"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/job"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/storage"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/video"
)

// maxBodyBytes bounds request bodies; video requests carry base64 images.
const maxBodyBytes = 32 << 20

// Turns runs the single-shot conversation turns.
type Turns interface {
	Send(ctx context.Context, conversationID string, in chat.SendInput) (*chat.Result, error)
	GenerateImage(ctx context.Context, conversationID string, in chat.ImageInput) (*chat.Result, error)
	Speak(ctx context.Context, conversationID string, in chat.SpeechInput) (*chat.Result, error)
}

// Videos starts and tracks video jobs.
type Videos interface {
	Start(ctx context.Context, conversationID string, req video.Request) (*job.Job, <-chan *job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context, conversationID string) ([]*job.Job, error)
	Cancel(ctx context.Context, id string) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	convs     conversation.Store
	turns     Turns
	videos    Videos
	media     storage.Storage
	catalog   *config.Catalog
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(convs conversation.Store, turns Turns, videos Videos, media storage.Storage, catalog *config.Catalog, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	return &Handlers{
		convs:     convs,
		turns:     turns,
		videos:    videos,
		media:     media,
		catalog:   catalog,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListModels handles GET /models, optionally filtered by ?kind=.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models := h.catalog.Models
	if kind := r.URL.Query().Get("kind"); kind != "" {
		models = h.catalog.ByKind(config.ModelKind(kind))
	}
	if models == nil {
		models = []config.Model{}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}

// ListConversations handles GET /conversations.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.convs.List(r.Context())
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	if list == nil {
		list = []conversation.Summary{}
	}
	writeJSON(w, http.StatusOK, ConversationsResponse{Conversations: list})
}

// CreateConversation handles POST /conversations.
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	conv, err := h.convs.Create(r.Context(), req.Name)
	if err != nil {
		h.fail(w, "create conversation", err)
		return
	}
	h.logger.Info("conversation created", slog.String("conversation_id", conv.ID))
	writeJSON(w, http.StatusCreated, conv)
}

// GetConversation handles GET /conversations/{id}.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "load conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RenameConversation handles PATCH /conversations/{id}.
func (h *Handlers) RenameConversation(w http.ResponseWriter, r *http.Request) {
	var req RenameConversationRequest
	if !h.decode(w, r, &req) {
		return
	}
	conv, err := h.convs.Rename(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		h.fail(w, "rename conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SendMessage handles POST /conversations/{id}/messages.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !h.decode(w, r, &req) || !h.checkModel(w, config.ModelChat, req.Model) {
		return
	}
	res, err := h.turns.Send(r.Context(), r.PathValue("id"), chat.SendInput{
		Text:        req.Text,
		Model:       req.Model,
		Temperature: req.Temperature,
		WebSearch:   req.WebSearch,
	})
	if err != nil {
		h.fail(w, "send message", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GenerateImage handles POST /conversations/{id}/images.
func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req GenerateImageRequest
	if !h.decode(w, r, &req) || !h.checkModel(w, config.ModelImage, req.Model) {
		return
	}
	res, err := h.turns.GenerateImage(r.Context(), r.PathValue("id"), chat.ImageInput{
		Prompt: req.Prompt,
		Model:  req.Model,
		Size:   req.Size,
	})
	if err != nil {
		h.fail(w, "generate image", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Speak handles POST /conversations/{id}/speech.
func (h *Handlers) Speak(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	if !h.decode(w, r, &req) || !h.checkModel(w, config.ModelSpeech, req.Model) {
		return
	}
	res, err := h.turns.Speak(r.Context(), r.PathValue("id"), chat.SpeechInput{
		Text:   req.Text,
		Model:  req.Model,
		Voice:  req.Voice,
		Format: req.Format,
	})
	if err != nil {
		h.fail(w, "speech", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateVideo handles POST /conversations/{id}/videos. The job runs in the
// background; the response is 202 with the queued job.
func (h *Handlers) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if !h.decode(w, r, &req) {
		return
	}

	vreq := video.Request{
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		AspectRatio:      video.AspectRatio(req.AspectRatio),
		DurationSeconds:  req.DurationSeconds,
		Resolution:       video.Resolution(req.Resolution),
		PersonGeneration: video.PersonGeneration(req.PersonGeneration),
		FirstFrame:       decodeImage(req.FirstFrameBase64),
		LastFrame:        decodeImage(req.LastFrameBase64),
	}
	for _, ref := range req.ReferenceImagesBase64 {
		if img := decodeImage(ref); img != nil {
			vreq.ReferenceImages = append(vreq.ReferenceImages, *img)
		}
	}

	created, _, err := h.videos.Start(r.Context(), r.PathValue("id"), vreq)
	if err != nil {
		h.fail(w, "create video", err)
		return
	}

	h.logger.Info("video job accepted",
		slog.String("job_id", created.ID),
		slog.String("conversation_id", created.ConversationID),
	)
	writeJSON(w, http.StatusAccepted, newJobResponse(created))
}

// ListJobs handles GET /conversations/{id}/jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	if _, err := h.convs.Load(r.Context(), convID); err != nil {
		h.fail(w, "list jobs", err)
		return
	}
	jobs, err := h.videos.ListJobs(r.Context(), convID)
	if err != nil {
		h.fail(w, "list jobs", err)
		return
	}
	resp := JobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	found, err := h.videos.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.videos.Cancel(r.Context(), id); err != nil {
		h.fail(w, "cancel job", err)
		return
	}
	found, err := h.videos.GetJob(r.Context(), id)
	if err != nil {
		h.fail(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, newJobResponse(found))
}

// GetMedia handles GET /conversations/{id}/media/{kind}/{file} and streams a
// stored attachment.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get media", err)
		return
	}
	key, err := storage.AttachmentKey(conv.ID, r.PathValue("kind"), r.PathValue("file"))
	if err != nil {
		h.fail(w, "get media", err)
		return
	}
	rc, err := h.media.Open(r.Context(), key)
	if err != nil {
		h.fail(w, "open media", err)
		return
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.fail(w, "read media", err)
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON", "")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR", "")
		return false
	}
	return true
}

// checkModel rejects a model that is not in the catalog for kind.
func (h *Handlers) checkModel(w http.ResponseWriter, kind config.ModelKind, model string) bool {
	if model == "" || h.catalog.Has(kind, model) {
		return true
	}
	writeError(w, http.StatusBadRequest, "unknown "+string(kind)+" model: "+model, "UNKNOWN_MODEL", "")
	return false
}

// fail maps a service error to an HTTP response.
func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)

	var logPath string
	var terr *chat.TurnError
	if errors.As(err, &terr) {
		logPath = terr.LogPath
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, err.Error(), code, logPath)
}

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrConversationNotFound):
		return http.StatusNotFound, "CONVERSATION_NOT_FOUND"
	case errors.Is(err, job.ErrJobNotFound):
		return http.StatusNotFound, "JOB_NOT_FOUND"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
		return http.StatusNotFound, "MEDIA_NOT_FOUND"
	case errors.Is(err, job.ErrJobFinished):
		return http.StatusConflict, "JOB_FINISHED"
	case errors.Is(err, job.ErrShuttingDown):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, conversation.ErrEmptyName):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	}

	switch video.Classify(err) {
	case video.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case video.KindGateway:
		return http.StatusBadGateway, "GATEWAY_ERROR"
	case video.KindContract:
		return http.StatusBadGateway, "CONTRACT_ERROR"
	case video.KindOperation:
		return http.StatusUnprocessableEntity, "OPERATION_FAILED"
	case video.KindTimeout:
		return http.StatusGatewayTimeout, "TIMED_OUT"
	case video.KindCanceled:
		return http.StatusServiceUnavailable, "CANCELED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// decodeImage returns nil for an empty string. The DTO validator has
// already checked the encoding.
func decodeImage(b64 string) *video.Image {
	if b64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return &video.Image{Data: data}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code, logPath string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		LogPath: logPath,
	})
}
