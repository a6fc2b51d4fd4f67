// Package job tracks video generation jobs that run off the caller's
// goroutine. It includes the Job entity with its state machine, the
// repository port, and the VideoService that drives the orchestrator and
// reconciles the result with the conversation store.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted but has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the orchestrator is working on the job.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video was generated and stored.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job ended with an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the poll budget ran out. The remote operation may still be running.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one video generation request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// ConversationID is the conversation the result is appended to.
	ConversationID string
	// Prompt is the trimmed user prompt.
	Prompt string
	// Model is the video model used.
	Model string
	// Status is the current job state.
	Status Status
	// Phase is the orchestrator phase the job ended in.
	Phase string
	// ErrorKind is the error class shown to users, empty on success.
	ErrorKind string
	// Error contains the error message if the job failed.
	Error string
	// OperationHandle is the remote operation name, once known.
	OperationHandle string
	// Attempts is the number of polls made.
	Attempts int
	// ArtifactID is the gateway file id of the result.
	ArtifactID string
	// MediaKey is the storage key of the stored video.
	MediaKey string
	// MediaPath is the local path of the stored video.
	MediaPath string
	// MediaURL is the mirrored URL, if any.
	MediaURL string
	// LogPath is the interaction log record of the call.
	LogPath string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job for conversationID with a generated ID and initial IN_QUEUE status.
func New(conversationID string) *Job {
	return NewWithID(id.Generate(), conversationID)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID, conversationID string) *Job {
	now := time.Now()
	return &Job{
		ID:             jobID,
		ConversationID: conversationID,
		Status:         StatusInQueue,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// End moves the job into the terminal failure status that matches kind and
// records the error. status must be FAILED, CANCELLED or TIMED_OUT.
func (j *Job) End(status Status, phase, kind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if status == StatusCompleted {
		return ErrInvalidTransition
	}
	if err := j.transitionLocked(status); err != nil {
		return err
	}
	j.Phase = phase
	j.ErrorKind = kind
	j.Error = errMsg
	return nil
}

// SetProgress records the operation handle and poll count.
func (j *Job) SetProgress(handle string, attempts int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OperationHandle = handle
	j.Attempts = attempts
	j.UpdatedAt = time.Now()
}

// SetOutput records where the generated video was stored.
func (j *Job) SetOutput(artifactID, key, path, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ArtifactID = artifactID
	j.MediaKey = key
	j.MediaPath = path
	j.MediaURL = url
	j.UpdatedAt = time.Now()
}

// SetLogPath records the interaction log location.
func (j *Job) SetLogPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.LogPath = path
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled ||
		j.Status == StatusTimedOut
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		ConversationID:  j.ConversationID,
		Prompt:          j.Prompt,
		Model:           j.Model,
		Status:          j.Status,
		Phase:           j.Phase,
		ErrorKind:       j.ErrorKind,
		Error:           j.Error,
		OperationHandle: j.OperationHandle,
		Attempts:        j.Attempts,
		ArtifactID:      j.ArtifactID,
		MediaKey:        j.MediaKey,
		MediaPath:       j.MediaPath,
		MediaURL:        j.MediaURL,
		LogPath:         j.LogPath,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}
