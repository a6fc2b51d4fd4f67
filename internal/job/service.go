package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/conversation"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/interaction"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/storage"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/video"
)

// Errors returned by VideoService.
var (
	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job: already finished")
	// ErrShuttingDown is returned by Start once Shutdown has been called.
	ErrShuttingDown = errors.New("job: service is shutting down")
)

// Generator runs one video generation to completion.
type Generator interface {
	Generate(ctx context.Context, req video.Request) (*video.Artifact, error)
	Model() string
}

// VideoService starts video generation jobs for a conversation and
// reconciles their outcome with the conversation store.
//
// Each job runs the Generator on its own goroutine, detached from the
// caller's context. The terminal job snapshot is delivered on the channel
// returned by Start.
type VideoService struct {
	repo   Repository
	convs  conversation.Store
	media  storage.Storage
	gen    Generator
	rec    interaction.Recorder
	logger *slog.Logger

	base    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

// NewVideoService creates a VideoService.
func NewVideoService(
	repo Repository,
	convs conversation.Store,
	media storage.Storage,
	gen Generator,
	rec interaction.Recorder,
	logger *slog.Logger,
) *VideoService {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = interaction.Discard{}
	}
	base, stop := context.WithCancel(context.Background())
	return &VideoService{
		repo:    repo,
		convs:   convs,
		media:   media,
		gen:     gen,
		rec:     rec,
		logger:  logger,
		base:    base,
		stop:    stop,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start validates req, records the user turn and launches generation.
// Validation failures are returned directly and no job is created.
func (s *VideoService) Start(ctx context.Context, conversationID string, req video.Request) (*Job, <-chan *Job, error) {
	norm, err := video.Normalize(req)
	if err != nil {
		return nil, nil, err
	}
	if s.isClosed() {
		return nil, nil, ErrShuttingDown
	}

	conv, err := s.convs.Load(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	content := norm.Prompt
	if content == "" {
		content = "(video from images)"
	}
	if err := s.convs.AppendMessage(ctx, conv, conversation.RoleUser, content, conversation.TypeText); err != nil {
		return nil, nil, fmt.Errorf("record prompt: %w", err)
	}

	job := New(conversationID)
	job.Prompt = norm.Prompt
	job.Model = s.gen.Model()

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil, err
	}

	s.logger.Info("video job created",
		slog.String("job_id", job.ID),
		slog.String("conversation_id", conversationID),
		slog.String("model", job.Model),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	release := context.AfterFunc(s.base, cancel)

	// wg.Add stays under mu: Shutdown sets closed before it waits.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		release()
		cancel()
		if err := job.End(StatusCancelled, "", string(video.KindCanceled), ErrShuttingDown.Error()); err == nil {
			s.save(ctx, job)
		}
		return nil, nil, ErrShuttingDown
	}
	s.cancels[job.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	done := make(chan *Job, 1)
	snapshot := job.Clone()

	go func() {
		defer s.wg.Done()

		s.run(runCtx, job, conv, req, norm)

		release()
		cancel()
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()

		done <- job.Clone()
		close(done)
	}()

	return snapshot, done, nil
}

func (s *VideoService) run(ctx context.Context, job *Job, conv *conversation.Conversation, req, norm video.Request) {
	if err := job.Start(); err != nil {
		s.logger.Error("video job could not start", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	s.save(ctx, job)

	started := time.Now()
	art, err := s.gen.Generate(ctx, req)
	latency := time.Since(started)

	if err != nil {
		s.fail(ctx, job, conv, norm, err, latency)
		return
	}

	job.SetProgress(art.Operation.Handle, art.Operation.Attempts)

	key := storage.MediaKey(conv.ID, storage.KindVideos, art.FileName())
	obj, err := s.media.Save(ctx, key, bytes.NewReader(art.Data))
	if err != nil && !errors.Is(err, storage.ErrMirrorFailed) {
		s.fail(ctx, job, conv, norm, fmt.Errorf("store video: %w", err), latency)
		return
	}
	if err != nil {
		s.logger.Warn("video stored locally only",
			slog.String("job_id", job.ID),
			slog.String("key", obj.Key),
			slog.String("error", err.Error()),
		)
	}

	att := conversation.Attachment{
		Path:     obj.Key,
		URL:      obj.URL,
		Filename: art.FileName(),
		MIMEType: art.MIMEType,
	}
	if err := s.convs.AppendAttachment(ctx, conv, conversation.RoleAssistant, norm.Prompt, conversation.TypeVideo, att); err != nil {
		if derr := s.media.Delete(context.WithoutCancel(ctx), []string{obj.Key}); derr != nil {
			s.logger.Warn("failed to remove orphaned video",
				slog.String("job_id", job.ID),
				slog.String("key", obj.Key),
				slog.String("error", derr.Error()),
			)
		}
		s.fail(ctx, job, conv, norm, fmt.Errorf("record video turn: %w", err), latency)
		return
	}

	job.SetOutput(art.ID, obj.Key, obj.Path, obj.URL)
	logPath := s.rec.Record(ctx, interaction.Event{
		Type:           interaction.TypeAPICall,
		API:            "video.generate",
		ConversationID: conv.ID,
		Model:          job.Model,
		Request:        requestSummary(norm),
		Response: map[string]any{
			"operation":   art.Operation.Handle,
			"attempts":    art.Operation.Attempts,
			"artifact_id": art.ID,
			"mime_type":   art.MIMEType,
			"bytes":       len(art.Data),
			"path":        obj.Key,
			"url":         obj.URL,
		},
		Latency: latency,
	})
	job.SetLogPath(logPath)

	if err := job.Complete(); err != nil {
		s.logger.Error("video job could not complete", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
	s.save(ctx, job)

	s.logger.Info("video job completed",
		slog.String("job_id", job.ID),
		slog.String("artifact_id", art.ID),
		slog.Int("attempts", art.Operation.Attempts),
		slog.Duration("latency", latency),
	)
}

// fail ends the job, appends an error turn and records the interaction.
// The error turn is best effort: no partial artifact is ever attached.
func (s *VideoService) fail(ctx context.Context, job *Job, conv *conversation.Conversation, norm video.Request, err error, latency time.Duration) {
	kind := video.Classify(err)
	status := StatusFailed
	switch kind {
	case video.KindTimeout:
		status = StatusTimedOut
	case video.KindCanceled:
		status = StatusCancelled
	}

	var phase string
	var verr *video.Error
	if errors.As(err, &verr) {
		phase = string(verr.Phase)
		job.SetProgress(verr.Handle, verr.Attempts)
	}

	if endErr := job.End(status, phase, string(kind), err.Error()); endErr != nil {
		s.logger.Error("video job could not end", slog.String("job_id", job.ID), slog.String("error", endErr.Error()))
	}

	// Error turns are written even after cancellation.
	turnCtx := context.WithoutCancel(ctx)
	msg := fmt.Sprintf("Video generation failed [%s]: %v", kind, err)
	if aerr := s.convs.AppendMessage(turnCtx, conv, conversation.RoleAssistant, msg, conversation.TypeError); aerr != nil {
		s.logger.Error("failed to record error turn",
			slog.String("job_id", job.ID),
			slog.String("error", aerr.Error()),
		)
	}

	logPath := s.rec.Record(turnCtx, interaction.Event{
		Type:           interaction.TypeAPIError,
		API:            "video.generate",
		ConversationID: conv.ID,
		Model:          job.Model,
		Request:        requestSummary(norm),
		Error: map[string]any{
			"kind":     string(kind),
			"phase":    phase,
			"message":  err.Error(),
			"attempts": job.Clone().Attempts,
		},
		Latency: latency,
	})
	job.SetLogPath(logPath)
	s.save(turnCtx, job)

	s.logger.Warn("video job failed",
		slog.String("job_id", job.ID),
		slog.String("kind", string(kind)),
		slog.String("phase", phase),
		slog.String("error", err.Error()),
	)
}

func (s *VideoService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// requestSummary is the loggable form of a normalized request. Image bytes
// are reduced to counts.
func requestSummary(r video.Request) map[string]any {
	return map[string]any{
		"prompt":            r.Prompt,
		"negative_prompt":   r.NegativePrompt,
		"aspect_ratio":      string(r.AspectRatio),
		"duration_seconds":  r.DurationSeconds,
		"resolution":        string(r.Resolution),
		"person_generation": string(r.PersonGeneration),
		"first_frame":       r.FirstFrame != nil,
		"last_frame":        r.LastFrame != nil,
		"reference_images":  len(r.ReferenceImages),
	}
}

// GetJob retrieves a job by ID.
func (s *VideoService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns the jobs of a conversation, newest first.
func (s *VideoService) ListJobs(ctx context.Context, conversationID string) ([]*Job, error) {
	return s.repo.List(ctx, conversationID)
}

// Cancel stops a running job. The job ends CANCELLED once the generator
// observes the cancellation.
func (s *VideoService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrJobFinished
}

func (s *VideoService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown cancels every running job and waits for them to finish or for
// ctx to end. Later Start calls fail with ErrShuttingDown.
func (s *VideoService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
