package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/go-arrower/api/alog"
)

// NewMemoryQueue is an in memory implementation of the Queue.
// No Jobs are persisted! Recommended use for local development and tests only.
// A failing Job is put back on the queue and retried after an increasing delay.
func NewMemoryQueue(opts ...MemoryQueueOpt) *MemoryQueue {
	q := &MemoryQueue{
		mu:        sync.Mutex{},
		jobs:      []memoryJob{},
		workerMap: map[string]JobFunc{},
		cancel:    nil,
		done:      nil,
		cron: cron.New(cron.WithParser(
			cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		)),
		logger:  alog.NewNoop(),
		backoff: exponentialBackoff,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// MemoryQueueOpt configures a MemoryQueue.
type MemoryQueueOpt func(*MemoryQueue)

// WithMemoryLogger reports failing Jobs of the background workers to logger.
func WithMemoryLogger(logger *slog.Logger) MemoryQueueOpt {
	return func(q *MemoryQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithRetryBackoff sets the delay before a Job that failed attempts times runs again.
func WithRetryBackoff(backoff func(attempts int) time.Duration) MemoryQueueOpt {
	return func(q *MemoryQueue) {
		if backoff != nil {
			q.backoff = backoff
		}
	}
}

const maxRetryDelay = time.Hour

// exponentialBackoff waits 1s, 2s, 4s, ... up to maxRetryDelay.
func exponentialBackoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}

	if attempts > 12 {
		return maxRetryDelay
	}

	return min(time.Second<<(attempts-1), maxRetryDelay)
}

type MemoryQueue struct { //nolint:govet // alignment less important than grouping of mutex
	mu        sync.Mutex
	jobs      []memoryJob
	workerMap map[string]JobFunc

	cancel context.CancelFunc
	done   chan struct{}

	cron *cron.Cron

	logger  *slog.Logger
	backoff func(attempts int) time.Duration
}

type memoryJob struct {
	runAt    time.Time
	job      any
	jobType  string
	attempts int
	priority int16
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Enqueue(_ context.Context, job Job, opts ...JobOpt) error {
	all, err := flatten(job)
	if err != nil {
		return err
	}

	o := applyJobOpts(opts)

	entries := make([]memoryJob, 0, len(all))

	for _, j := range all {
		jobType, err := TypeOf(j)
		if err != nil {
			return err
		}

		entries = append(entries, memoryJob{job: j, jobType: jobType, runAt: o.runAt, priority: o.priority})
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = append(q.jobs, entries...)

	return nil
}

func (q *MemoryQueue) Schedule(spec string, job Job) error {
	jobType, err := TypeOf(job)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}

	_, err = q.cron.AddFunc(spec, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		q.jobs = append(q.jobs, memoryJob{job: job, jobType: jobType, runAt: time.Time{}, priority: 0})
	})
	if err != nil {
		return fmt.Errorf("%w: could not schedule job: %v", ErrScheduleFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	return nil
}

func (q *MemoryQueue) RegisterJobFunc(jf JobFunc) error {
	if !isValidJobFunc(jf) {
		return ErrInvalidJobFunc
	}

	jobType, err := jobTypeOf(reflectParam(jf))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegisterJobFuncFailed, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return ErrQueueStarted
	}

	if _, ok := q.workerMap[jobType]; ok {
		return fmt.Errorf("%w: JobType %s already registered", ErrRegisterJobFuncFailed, jobType)
	}

	q.workerMap[jobType] = jf

	return nil
}

// Start processes the Jobs enqueued in this queue in the background.
// It has to be started explicitly, so no Jobs are processed while asserting in tests.
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return ErrQueueStarted
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.done = make(chan struct{})

	go q.runWorkers(ctx, q.done)
	q.cron.Start()

	return nil
}

func (q *MemoryQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()

	wait := q.cron.Stop()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("could not shutdown queue: %w", ctx.Err())
	}

	<-wait.Done()

	return nil
}

// RunPending processes all Jobs that are due, synchronously and in priority order.
// Failed Jobs are put back on the queue with a delay and their errors are returned joined.
func (q *MemoryQueue) RunPending(ctx context.Context) error {
	var errs []error

	for _, job := range q.takeDue(time.Now()) {
		if err := q.process(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *MemoryQueue) runWorkers(ctx context.Context, done chan struct{}) {
	defer close(done)

	const tickerDuration = 100 * time.Millisecond

	interval := time.NewTicker(tickerDuration)
	defer interval.Stop()

	for {
		select {
		case <-interval.C:
			if err := q.RunPending(ctx); err != nil {
				q.logger.LogAttrs(ctx, slog.LevelWarn, "job failed, will retry",
					slog.String("err", err.Error()),
				)
			}
		case <-ctx.Done(): // stop workers
			return
		}
	}
}

// takeDue removes and returns all jobs with a registered JobFunc that are due at now.
func (q *MemoryQueue) takeDue(now time.Time) []memoryJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := []memoryJob{}
	rest := make([]memoryJob, 0, len(q.jobs))

	for _, j := range q.jobs {
		_, registered := q.workerMap[j.jobType]
		if registered && !j.runAt.After(now) {
			due = append(due, j)
		} else {
			rest = append(rest, j)
		}
	}

	q.jobs = rest

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].priority < due[j].priority
	})

	return due
}

func (q *MemoryQueue) process(ctx context.Context, job memoryJob) error {
	q.mu.Lock()
	jf := q.workerMap[job.jobType]
	q.mu.Unlock()

	if err := invoke(ctx, jf, reflect.ValueOf(job.job)); err != nil {
		job.attempts++
		job.runAt = time.Now().Add(q.backoff(job.attempts))

		q.mu.Lock()
		q.jobs = append(q.jobs, job)
		q.mu.Unlock()

		return err
	}

	return nil
}

// pending returns a copy of all Jobs not processed yet.
func (q *MemoryQueue) pending() []memoryJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]memoryJob(nil), q.jobs...)
}

// clear removes all pending Jobs.
func (q *MemoryQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs = []memoryJob{}
}
