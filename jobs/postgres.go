package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
	"github.com/vgarvardt/gueron/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/go-arrower/api/alog"
	apictx "github.com/go-arrower/api/ctx"
	"github.com/go-arrower/api/postgres"
)

// NewPostgresQueue returns a Queue persisting all Jobs in the gue_jobs table.
// The default queue is "default" with a pool of 4 workers polling every second,
// which can be overridden by the QueueOpts.
func NewPostgresQueue(
	logger *slog.Logger,
	meterProvider metric.MeterProvider,
	traceProvider trace.TracerProvider,
	pgxPool *pgxpool.Pool,
	opts ...QueueOpt,
) (*PostgresQueue, error) {
	const (
		defaultQueue        = "default"
		defaultPollInterval = time.Second
		defaultPoolSize     = 4
	)

	conf := queueOpts{
		queue:        defaultQueue,
		poolName:     "api-" + defaultQueue,
		poolSize:     defaultPoolSize,
		pollInterval: defaultPollInterval,
	}

	for _, opt := range opts {
		opt(&conf)
	}

	gueLogger := &gueLogAdapter{l: logger.With(slog.String("component", "gue"))}
	meter := meterProvider.Meter("api.jobs")
	poolAdapter := pgxv5.NewConnPool(pgxPool)

	gc, err := gue.NewClient(
		poolAdapter,
		gue.WithClientID(conf.poolName),
		gue.WithClientLogger(gueLogger),
		gue.WithClientMeter(meter),
	)
	if err != nil {
		return nil, fmt.Errorf("could not connect gue to the database: %w", err)
	}

	scheduler, err := gueron.NewScheduler(
		poolAdapter,
		gueron.WithQueueName(conf.queue),
		gueron.WithHorizon(time.Hour),
		gueron.WithLogger(gueLogger),
		gueron.WithMeter(meter),
		gueron.WithPollInterval(conf.pollInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create cron scheduler: %w", err)
	}

	return &PostgresQueue{
		logger:     logger,
		gueLogger:  gueLogger,
		meter:      meter,
		tracer:     traceProvider.Tracer("api.jobs"),
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		gueClient:  gc,
		workMap:    gue.WorkMap{},
		scheduler:  scheduler,
		conf:       conf,
		mu:         sync.Mutex{},
		cancel:     nil,
		group:      nil,
	}, nil
}

// PostgresQueue is a Queue backed by gue, periodic Jobs are scheduled by gueron.
type PostgresQueue struct { //nolint:govet // fields are grouped by meaning
	logger     *slog.Logger
	gueLogger  adapter.Logger
	meter      metric.Meter
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	gueClient *gue.Client
	workMap   gue.WorkMap
	scheduler *gueron.Scheduler
	conf      queueOpts

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) Enqueue(ctx context.Context, job Job, opts ...JobOpt) error {
	ctx, span := q.tracer.Start(ctx, "enqueue")
	defer span.End()

	all, err := flatten(job)
	if err != nil {
		return err
	}

	carrier := propagation.MapCarrier{}
	q.propagator.Inject(ctx, carrier)

	userID, _ := ctx.Value(apictx.CtxAuthUserID).(string)
	o := applyJobOpts(opts)

	gueJobs := make([]*gue.Job, 0, len(all))

	for _, j := range all {
		gueJob, err := q.gueJob(j, payloadCtx{Carrier: carrier, UserID: userID}, o)
		if err != nil {
			return err
		}

		gueJobs = append(gueJobs, gueJob)
	}

	// if db transaction is present in ctx use it, otherwise enqueue without transactional safety.
	if tx, ok := ctx.Value(postgres.CtxTX).(pgx.Tx); ok {
		err = q.gueClient.EnqueueBatchTx(ctx, gueJobs, pgxv5.NewTx(tx))
		if err != nil {
			return fmt.Errorf("%w: could not enqueue gue with transaction: %v", ErrEnqueueFailed, err) //nolint:errorlint,lll // prevent err in api
		}

		return nil
	}

	err = q.gueClient.EnqueueBatch(ctx, gueJobs)
	if err != nil {
		return fmt.Errorf("%w: could not enqueue gue job: %v", ErrEnqueueFailed, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

func (q *PostgresQueue) gueJob(job any, pctx payloadCtx, o jobOpts) (*gue.Job, error) {
	jobType, err := TypeOf(job)
	if err != nil {
		return nil, err
	}

	args, err := marshalPayload(job, pctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not marshal job: %v", ErrEnqueueFailed, err) //nolint:errorlint // prevent err in api
	}

	return &gue.Job{ //nolint:exhaustruct // only set required properties
		Queue:    q.conf.queue,
		Type:     jobType,
		Args:     args,
		Priority: gue.JobPriority(o.priority),
		RunAt:    o.runAt,
	}, nil
}

func marshalPayload(job any, pctx payloadCtx) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}

	return json.Marshal(payload{JobData: data, Ctx: pctx}) //nolint:wrapcheck // wrapped by caller
}

func (q *PostgresQueue) RegisterJobFunc(jf JobFunc) error {
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

	if _, ok := q.workMap[jobType]; ok {
		return fmt.Errorf("%w: JobType %s already registered", ErrRegisterJobFuncFailed, jobType)
	}

	q.workMap[jobType] = q.workerAdapter(jf)

	return nil
}

func (q *PostgresQueue) Schedule(spec string, job Job) error {
	jobType, err := TypeOf(job)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}

	args, err := marshalPayload(job, payloadCtx{})
	if err != nil {
		return fmt.Errorf("%w: could not marshal cron: %v", ErrScheduleFailed, err) //nolint:errorlint // prevent err in api
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	_, err = q.scheduler.Add(spec, jobType, args)
	if err != nil {
		return fmt.Errorf("%w: could not schedule cron: %v", ErrScheduleFailed, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

// Start runs the gue workers and the gueron scheduler in the background.
func (q *PostgresQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return ErrQueueStarted
	}

	const panicStackBufSize = 4 * 1024 // 2 * gue's default

	workers, err := gue.NewWorkerPool(q.gueClient, q.workMap, q.conf.poolSize,
		gue.WithPoolQueue(q.conf.queue),
		gue.WithPoolPollInterval(q.conf.pollInterval),
		gue.WithPoolID(q.conf.poolName),
		gue.WithPoolLogger(q.gueLogger), gue.WithPoolMeter(q.meter), gue.WithPoolTracer(q.tracer),
		gue.WithPoolPollStrategy(gue.PriorityPollStrategy),
		gue.WithPoolPanicStackBufSize(panicStackBufSize),
	)
	if err != nil {
		return fmt.Errorf("%w: could not create gue worker pool: %v", ErrRegisterJobFuncFailed, err) //nolint:errorlint,lll // prevent err in api
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := workers.Run(gctx); err != nil {
			return fmt.Errorf("gue worker failed: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		if err := q.scheduler.Run(gctx, q.workMap, 0); err != nil { // zero => use pool of queue above instead
			return fmt.Errorf("gueron worker failed: %w", err)
		}

		return nil
	})

	q.cancel = cancel
	q.group = group

	q.logger.Log(ctx, alog.LevelInfo, "task queue started",
		slog.String("queue", q.conf.queue),
		slog.Int("pool_size", q.conf.poolSize),
		slog.Int("job_types", len(q.workMap)),
	)

	return nil
}

func (q *PostgresQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel == nil {
		return nil
	}

	q.cancel()

	done := make(chan error, 1)
	go func() { done <- q.group.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("could not shutdown queue: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("could not shutdown queue: %w", ctx.Err())
	}

	q.cancel = nil
	q.group = nil

	return nil
}

// workerAdapter runs jf inside the job's transaction, guarded by a savepoint,
// so a failing JobFunc does not keep any of its changes.
func (q *PostgresQueue) workerAdapter(jf JobFunc) gue.WorkFunc {
	return func(ctx context.Context, job *gue.Job) error {
		var p payload
		if err := json.Unmarshal(job.Args, &p); err != nil {
			return fmt.Errorf("%w: could not unmarshal job args: %v", ErrJobFuncFailed, err) //nolint:errorlint,lll // prevent err in api
		}

		txHandle, ok := pgxv5.UnwrapTx(job.Tx())
		if !ok {
			return fmt.Errorf("%w: could not unwrap gue job tx for use in the worker", ErrJobFuncFailed)
		}

		ctx, span := q.tracer.Start(q.propagator.Extract(ctx, propagation.MapCarrier(p.Ctx.Carrier)),
			fmt.Sprintf("job: %s run: %d", job.Type, job.ErrorCount))
		defer span.End()

		span.SetAttributes(
			attribute.String("job_id", job.ID.String()),
			attribute.String("queue", job.Queue),
			attribute.String("type", job.Type),
			attribute.Int("priority", int(job.Priority)),
			attribute.Int("run_count", int(job.ErrorCount)),
		)

		ctx = alog.AddAttr(ctx, slog.String("job_id", job.ID.String()))
		ctx = context.WithValue(ctx, CtxJobID, job.ID.String())
		ctx = context.WithValue(ctx, postgres.CtxTX, txHandle)

		if p.Ctx.UserID != "" {
			ctx = context.WithValue(ctx, apictx.CtxAuthUserID, p.Ctx.UserID)
		}

		if _, err := txHandle.Exec(ctx, `SAVEPOINT before_worker;`); err != nil {
			return fmt.Errorf("%w: could not create savepoint: %v", ErrJobFuncFailed, err) //nolint:errorlint,lll // prevent err in api
		}

		if jobErr := callJobFunc(ctx, jf, p.JobData); jobErr != nil {
			span.SetStatus(codes.Error, jobErr.Error())

			if _, err := txHandle.Exec(ctx, `ROLLBACK TO before_worker;`); err != nil {
				return fmt.Errorf("%w: could not roll back to savepoint: %v", ErrJobFuncFailed, err) //nolint:errorlint,lll // prevent err in api
			}

			return jobErr
		}

		if _, err := txHandle.Exec(ctx, `RELEASE SAVEPOINT before_worker;`); err != nil {
			return fmt.Errorf("%w: could not release savepoint: %v", ErrJobFuncFailed, err) //nolint:errorlint,lll // prevent err in api
		}

		return nil
	}
}
