package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/gateway"
)

// Defaults for the poll loop. Together they give a ten minute budget.
const (
	DefaultModel        = "veo-3.0-generate-preview"
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 60
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Artifact is a downloaded generation result. The caller owns Data.
type Artifact struct {
	ID        string
	Data      []byte
	MIMEType  string
	Extension string
	// Operation is a snapshot of the finished operation.
	Operation Operation
}

// FileName returns the artifact id with its extension.
func (a *Artifact) FileName() string {
	return a.ID + a.Extension
}

// Orchestrator runs video generation requests against the gateway.
// Each Generate call is independent; an Orchestrator holds no per-request
// state and may be used from several goroutines.
type Orchestrator struct {
	gw           gateway.Client
	logger       *slog.Logger
	model        string
	pollInterval time.Duration
	maxAttempts  int
	sleep        SleepFunc
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel sets the video model used in the start endpoint.
func WithModel(model string) Option {
	return func(o *Orchestrator) {
		if model != "" {
			o.model = model
		}
	}
}

// WithPollInterval sets the delay before each poll.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxAttempts sets the maximum number of polls before giving up.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithSleep replaces the wait between polls, typically with a fake in tests.
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// New creates an Orchestrator.
func New(gw gateway.Client, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		gw:           gw,
		logger:       logger,
		model:        DefaultModel,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		sleep:        sleepContext,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Model returns the configured video model.
func (o *Orchestrator) Model() string {
	return o.model
}

// Budget returns the total time the poll loop waits before timing out.
func (o *Orchestrator) Budget() time.Duration {
	return time.Duration(o.maxAttempts) * o.pollInterval
}

// Generate validates req, starts the operation, polls it to completion and
// returns the downloaded artifact. It blocks for the whole duration. Every
// failure is returned as *Error.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Artifact, error) {
	norm, err := Normalize(req)
	if err != nil {
		o.logger.Warn("video request rejected", slog.String("error", err.Error()))
		return nil, &Error{Phase: PhaseRejected, Err: err}
	}

	endpoint := fmt.Sprintf("models/%s:predictLongRunning", o.model)
	started, err := o.gw.StartOperation(ctx, endpoint, buildPayload(norm))
	if err != nil {
		o.logger.Error("video operation start failed",
			slog.String("model", o.model),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Phase: o.failedPhase(ctx, PhaseStartFailed), Err: err}
	}

	op := newOperation(started.Name, o.now())
	o.logger.Info("video operation started",
		slog.String("operation", op.Handle),
		slog.String("model", o.model),
		slog.String("aspect_ratio", string(norm.AspectRatio)),
		slog.Int("duration_seconds", norm.DurationSeconds),
		slog.String("resolution", string(norm.Resolution)),
		slog.Int("max_attempts", o.maxAttempts),
		slog.Duration("poll_interval", o.pollInterval),
	)

	final := started
	if !started.Done {
		final, err = o.pollUntilDone(ctx, op)
		if err != nil {
			return nil, err
		}
	}

	res, err := o.resolve(op, final)
	if err != nil {
		return nil, err
	}

	return o.download(ctx, op, res)
}

// pollUntilDone polls op until the gateway reports it done, the budget runs
// out or a poll fails.
func (o *Orchestrator) pollUntilDone(ctx context.Context, op *Operation) (gateway.Operation, error) {
	for op.Attempts < o.maxAttempts {
		if err := o.sleep(ctx, o.pollInterval); err != nil {
			_ = op.transitionTo(StateFailed)
			o.logger.Warn("video operation polling canceled",
				slog.String("operation", op.Handle),
				slog.Int("attempts", op.Attempts),
			)
			return gateway.Operation{}, o.opError(PhaseCanceled, op, err)
		}

		if err := op.recordAttempt(); err != nil {
			return gateway.Operation{}, o.opError(PhasePollFailed, op, err)
		}

		status, err := o.gw.PollOperation(ctx, op.Handle)
		if err != nil {
			_ = op.transitionTo(StateFailed)
			o.logger.Error("video operation poll failed",
				slog.String("operation", op.Handle),
				slog.Int("attempt", op.Attempts),
				slog.String("error", err.Error()),
			)
			return gateway.Operation{}, o.opError(o.failedPhase(ctx, PhasePollFailed), op, err)
		}

		o.logger.Debug("video operation polled",
			slog.String("operation", op.Handle),
			slog.Int("attempt", op.Attempts),
			slog.Bool("done", status.Done),
			slog.Duration("elapsed", o.now().Sub(op.StartedAt)),
		)

		if status.Done {
			return status, nil
		}
	}

	_ = op.transitionTo(StateTimedOut)
	o.logger.Warn("video operation timed out",
		slog.String("operation", op.Handle),
		slog.Int("attempts", op.Attempts),
		slog.Duration("budget", o.Budget()),
	)
	return gateway.Operation{}, o.opError(PhaseTimedOut, op, ErrTimedOut)
}

// resolve turns a done operation into a result and settles op's state.
func (o *Orchestrator) resolve(op *Operation, final gateway.Operation) (result, error) {
	if final.Error != nil {
		_ = op.transitionTo(StateFailed)
		oerr := &OperationError{Code: final.Error.Code, Message: final.Error.Message}
		o.logger.Error("video operation finished with error",
			slog.String("operation", op.Handle),
			slog.Int("code", oerr.Code),
			slog.String("message", oerr.Message),
		)
		return result{}, o.opError(PhasePollFailed, op, oerr)
	}

	res, err := parseCompletion(final.Response)
	if err != nil {
		_ = op.transitionTo(StateFailed)
		o.logger.Error("video operation result unusable",
			slog.String("operation", op.Handle),
			slog.String("error", err.Error()),
		)
		return result{}, o.opError(PhasePollFailed, op, err)
	}

	if err := op.succeed(res.Ref); err != nil {
		return result{}, o.opError(PhasePollFailed, op, err)
	}
	return res, nil
}

func (o *Orchestrator) download(ctx context.Context, op *Operation, res result) (*Artifact, error) {
	data := res.Inline
	id := res.ArtifactID

	if data == nil {
		var err error
		data, err = o.gw.DownloadArtifact(ctx, id)
		if err != nil {
			o.logger.Error("video artifact download failed",
				slog.String("operation", op.Handle),
				slog.String("artifact_id", id),
				slog.String("error", err.Error()),
			)
			return nil, o.opError(o.failedPhase(ctx, PhaseDownloadFailed), op, err)
		}
		if len(data) == 0 {
			return nil, o.opError(PhaseDownloadFailed, op,
				gateway.NewContractError("download artifact", "empty artifact body", nil))
		}
	} else {
		id = path.Base(op.Handle)
	}

	mimeType, ext := artifactType(res.MIMEType, data)

	o.logger.Info("video artifact downloaded",
		slog.String("operation", op.Handle),
		slog.String("artifact_id", id),
		slog.Int("bytes", len(data)),
		slog.Int("attempts", op.Attempts),
		slog.Duration("elapsed", o.now().Sub(op.StartedAt)),
	)

	return &Artifact{
		ID:        id,
		Data:      data,
		MIMEType:  mimeType,
		Extension: ext,
		Operation: *op,
	}, nil
}

func (o *Orchestrator) opError(phase Phase, op *Operation, err error) *Error {
	return &Error{Phase: phase, Handle: op.Handle, Attempts: op.Attempts, Err: err}
}

// failedPhase reports Canceled instead of phase when the failure was caused
// by ctx ending.
func (o *Orchestrator) failedPhase(ctx context.Context, phase Phase) Phase {
	if ctx.Err() != nil {
		return PhaseCanceled
	}
	return phase
}

// artifactType picks the MIME type and file extension of a downloaded video.
func artifactType(reported string, data []byte) (string, string) {
	if reported != "" {
		if m := mimetype.Lookup(reported); m != nil && m.Extension() != "" {
			return m.String(), m.Extension()
		}
	}
	m := mimetype.Detect(data)
	if m.Extension() != "" && !strings.HasPrefix(m.String(), "text/") {
		return m.String(), m.Extension()
	}
	return "video/mp4", ".mp4"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("video: wait between polls: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// IsTimeout reports whether err is a poll budget timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimedOut)
}
