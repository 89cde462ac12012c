package port

import (
	"context"
	"time"
)

// JobFunc is a scheduler callback. Callbacks are looked up by name so that
// persisted jobs can be restored after a restart.
type JobFunc func(ctx context.Context, args []string) error

type Scheduler interface {
	// RegisterFunc makes fn available to jobs under name.
	RegisterFunc(name string, fn JobFunc)
	// ScheduleOnce stores a job that runs callback once at or after at.
	ScheduleOnce(ctx context.Context, id, callback string, args []string, at time.Time) error
	// ScheduleCron stores a recurring job. With replaceExisting false an existing id is an error.
	ScheduleCron(ctx context.Context, id, callback string, args []string, spec string, replaceExisting bool) error
	// Remove deletes the job with id. It fails with domain.ErrJobNotFound for unknown ids.
	Remove(ctx context.Context, id string) error
	// Start begins firing due jobs.
	Start(ctx context.Context) error
	// Shutdown stops firing and waits for running jobs.
	Shutdown(ctx context.Context) error
}
