// Package jobs is the task queue of the api.
// Jobs are plain structs, processed by a JobFunc registered for their type.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-arrower/api/ctx"
)

// CtxJobID contains the ID of the job currently processed.
const CtxJobID ctx.CTXKey = "api.jobs.id"

var (
	ErrRegisterJobFuncFailed = errors.New("register JobFunc failed")
	ErrInvalidJobFunc        = fmt.Errorf("%w: invalid JobFunc func signature", ErrRegisterJobFuncFailed)
	ErrQueueStarted          = fmt.Errorf("%w: queue already started", ErrRegisterJobFuncFailed)
	ErrEnqueueFailed         = errors.New("enqueue failed")
	ErrInvalidJobType        = fmt.Errorf("%w: invalid job type", ErrEnqueueFailed)
	ErrScheduleFailed        = errors.New("schedule failed")
	ErrJobFuncFailed         = errors.New("job failed")
)

// Enqueuer is an interface that allows new Jobs to be enqueued.
type Enqueuer interface {
	// Enqueue schedules new Jobs. Use the JobOpts to configure the Jobs scheduled.
	// Job can be a single struct or a slice of structs.
	// If ctx has a postgres.CtxTX present, that transaction is used to persist the new job(s).
	Enqueue(ctx context.Context, job Job, opts ...JobOpt) error
}

type Queue interface {
	Enqueuer

	// RegisterJobFunc registers a new JobFunc in the Queue. The name of the Job struct of JobFunc is used
	// as the job type, except Job implements the JobType interface.
	// All JobFuncs have to be registered before Start.
	RegisterJobFunc(jf JobFunc) error

	// Schedule enqueues job periodically, as defined by the cron spec, e.g. "@every 1h" or "0 3 * * *".
	Schedule(spec string, job Job) error

	// Start processes the jobs in the background until Shutdown is called.
	Start(ctx context.Context) error

	// Shutdown blocks and waits until all started jobs are finished.
	Shutdown(ctx context.Context) error
}

type (
	// Job carries the payload passed between job creator and worker.
	// The type of Job has to be a named struct that optionally implements JobType.
	Job any

	// JobType returns the Job's type. If it's not implemented,
	// the package and struct name are used as JobType instead, e.g. "user.ExportUsers".
	JobType interface {
		JobType() string
	}

	// JobFunc is the worker's handler and must have the signature:
	// func(ctx context.Context, job Job) error {}.
	JobFunc any
)

type (
	// QueueOpt are functions that allow different behaviour of a Queue.
	QueueOpt func(*queueOpts)

	// JobOpt are functions which allow specific changes in the behaviour of a Job, e.g.
	// set a priority or a time at which the job should run at.
	JobOpt func(*jobOpts)
)

type queueOpts struct {
	queue        string
	poolName     string
	poolSize     int
	pollInterval time.Duration
}

type jobOpts struct {
	runAt    time.Time
	priority int16
}

// WithQueue sets the name of the queue used for all Jobs.
func WithQueue(queue string) QueueOpt {
	return func(o *queueOpts) {
		o.queue = queue
	}
}

// WithPollInterval sets the duration in which to check for new Jobs.
func WithPollInterval(d time.Duration) QueueOpt {
	return func(o *queueOpts) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPoolSize sets the number of workers used to poll from the queue.
func WithPoolSize(n int) QueueOpt {
	return func(o *queueOpts) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithPoolName sets the name of the worker pool.
func WithPoolName(n string) QueueOpt {
	return func(o *queueOpts) {
		o.poolName = n
	}
}

// WithPriority changes the priority of a Job. The default priority is 0, and a lower number means a higher priority.
func WithPriority(priority int16) JobOpt {
	return func(o *jobOpts) {
		o.priority = priority
	}
}

// WithRunAt defines the time when a Job should be run at. It will not be processed earlier,
// but might be picked up later, if the queue is full.
func WithRunAt(runAt time.Time) JobOpt {
	return func(o *jobOpts) {
		o.runAt = runAt
	}
}

func applyJobOpts(opts []JobOpt) jobOpts {
	o := jobOpts{runAt: time.Time{}, priority: 0}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
