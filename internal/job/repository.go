package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job: not found")

// Repository stores job snapshots. Jobs are not persisted across restarts;
// the conversation turns are the durable record of a generation.
type Repository interface {
	// Save stores a snapshot of job, replacing any earlier one.
	Save(ctx context.Context, job *Job) error

	// FindByID returns the job with id or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the jobs of conversationID, newest first. An empty
	// conversationID lists every job.
	List(ctx context.Context, conversationID string) ([]*Job, error)
}
