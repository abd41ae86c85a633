package jobs_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/jobs"
)

type simpleJob struct {
	Name string
}

type namedJob struct{}

func (namedJob) JobType() string { return "some.named" }

var errJobFailed = errors.New("job failed on purpose")

func TestTypeOf(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		job      jobs.Job
		expected string
		err      error
	}{
		"struct":        {simpleJob{}, "jobs_test.simpleJob", nil},
		"job type":      {namedJob{}, "some.named", nil},
		"nil":           {nil, "", jobs.ErrInvalidJobType},
		"primitive":     {"some-string", "", jobs.ErrInvalidJobType},
		"anonymous":     {struct{}{}, "", jobs.ErrInvalidJobType},
		"pointer":       {&simpleJob{}, "", jobs.ErrInvalidJobType},
		"slice of jobs": {[]simpleJob{}, "", jobs.ErrInvalidJobType},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			jobType, err := jobs.TypeOf(tt.job)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.expected, jobType)
		})
	}
}

func TestMemoryQueue_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("invalid jobs", func(t *testing.T) {
		t.Parallel()

		queue := jobs.Test(t)

		assert.ErrorIs(t, queue.Enqueue(context.Background(), nil), jobs.ErrInvalidJobType)
		assert.ErrorIs(t, queue.Enqueue(context.Background(), 1337), jobs.ErrInvalidJobType)
		assert.ErrorIs(t, queue.Enqueue(context.Background(), []simpleJob{}), jobs.ErrInvalidJobType)
		assert.ErrorIs(t, queue.Enqueue(context.Background(), []any{simpleJob{}, "no-struct"}), jobs.ErrInvalidJobType)
		queue.Empty()
	})

	t.Run("single and multiple jobs", func(t *testing.T) {
		t.Parallel()

		queue := jobs.Test(t)

		require.NoError(t, queue.Enqueue(context.Background(), simpleJob{Name: "0"}))
		require.NoError(t, queue.Enqueue(context.Background(), []simpleJob{{Name: "1"}, {Name: "2"}}))
		require.NoError(t, queue.Enqueue(context.Background(), []any{simpleJob{}, namedJob{}}))

		queue.Total(5)
		queue.Queued(simpleJob{}, 4)
		queue.Queued(namedJob{}, 1)
		assert.Equal(t, simpleJob{Name: "0"}, queue.GetFirst())

		queue.Clear()
		queue.Empty()
		assert.Nil(t, queue.GetFirst())
	})
}

func TestMemoryQueue_RegisterJobFunc(t *testing.T) {
	t.Parallel()

	t.Run("invalid job funcs", func(t *testing.T) {
		t.Parallel()

		queue := jobs.NewMemoryQueue()

		invalid := []jobs.JobFunc{
			nil,
			"not-a-func",
			func() error { return nil },
			func(context.Context) error { return nil },
			func(context.Context, simpleJob) {},
			func(string, simpleJob) error { return nil },
			func(context.Context, int) error { return nil },
			func(context.Context, simpleJob) (int, error) { return 0, nil },
		}

		for _, jf := range invalid {
			assert.ErrorIs(t, queue.RegisterJobFunc(jf), jobs.ErrInvalidJobFunc)
		}
	})

	t.Run("register once", func(t *testing.T) {
		t.Parallel()

		queue := jobs.NewMemoryQueue()

		jf := func(context.Context, simpleJob) error { return nil }

		require.NoError(t, queue.RegisterJobFunc(jf))
		assert.ErrorIs(t, queue.RegisterJobFunc(jf), jobs.ErrRegisterJobFuncFailed)
	})

	t.Run("after start", func(t *testing.T) {
		t.Parallel()

		queue := jobs.NewMemoryQueue()
		require.NoError(t, queue.Start(context.Background()))
		t.Cleanup(func() { _ = queue.Shutdown(context.Background()) })

		err := queue.RegisterJobFunc(func(context.Context, simpleJob) error { return nil })
		assert.ErrorIs(t, err, jobs.ErrQueueStarted)
	})
}

func TestMemoryQueue_RunPending(t *testing.T) {
	t.Parallel()

	t.Run("process due jobs", func(t *testing.T) {
		t.Parallel()

		queue := jobs.Test(t)

		var names []string

		err := queue.RegisterJobFunc(func(_ context.Context, j simpleJob) error {
			names = append(names, j.Name)

			return nil
		})
		require.NoError(t, err)

		_ = queue.Enqueue(context.Background(), simpleJob{Name: "low"}, jobs.WithPriority(10))
		_ = queue.Enqueue(context.Background(), simpleJob{Name: "high"}, jobs.WithPriority(-10))
		_ = queue.Enqueue(context.Background(), simpleJob{Name: "later"}, jobs.WithRunAt(time.Now().Add(time.Hour)))
		_ = queue.Enqueue(context.Background(), namedJob{}) // no JobFunc registered

		queue.Process(context.Background())

		assert.Equal(t, []string{"high", "low"}, names)
		queue.Total(2)
	})

	t.Run("failing job is put back", func(t *testing.T) {
		t.Parallel()

		queue := jobs.Test(t)

		err := queue.RegisterJobFunc(func(context.Context, simpleJob) error { return errJobFailed })
		require.NoError(t, err)

		_ = queue.Enqueue(context.Background(), simpleJob{})

		err = queue.RunPending(context.Background())
		assert.ErrorIs(t, err, jobs.ErrJobFuncFailed)
		assert.ErrorIs(t, err, errJobFailed)
		queue.Total(1)
	})

	t.Run("failing job waits before retry", func(t *testing.T) {
		t.Parallel()

		queue := jobs.NewMemoryQueue(jobs.WithRetryBackoff(func(int) time.Duration { return time.Hour }))

		var calls int

		err := queue.RegisterJobFunc(func(context.Context, simpleJob) error {
			calls++

			return errJobFailed
		})
		require.NoError(t, err)

		_ = queue.Enqueue(context.Background(), simpleJob{})

		assert.Error(t, queue.RunPending(context.Background()))
		assert.NoError(t, queue.RunPending(context.Background()), "job is not due yet")
		assert.Equal(t, 1, calls)
	})
}

func TestMemoryQueue_Start(t *testing.T) {
	t.Parallel()

	queue := jobs.NewMemoryQueue()

	var processed atomic.Int32

	err := queue.RegisterJobFunc(func(context.Context, simpleJob) error {
		processed.Add(1)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, queue.Start(context.Background()))
	assert.ErrorIs(t, queue.Start(context.Background()), jobs.ErrQueueStarted)

	_ = queue.Enqueue(context.Background(), []simpleJob{{}, {}, {}})

	assert.Eventually(t, func() bool { return processed.Load() == 3 }, time.Second, 10*time.Millisecond)

	require.NoError(t, queue.Shutdown(context.Background()))
	require.NoError(t, queue.Shutdown(context.Background()), "shutdown twice")
}

func TestMemoryQueue_StartLogsFailures(t *testing.T) {
	t.Parallel()

	logger := alog.Test(t)
	queue := jobs.NewMemoryQueue(jobs.WithMemoryLogger(logger.Logger))

	var calls atomic.Int32

	err := queue.RegisterJobFunc(func(context.Context, simpleJob) error {
		calls.Add(1)

		return errJobFailed
	})
	require.NoError(t, err)

	require.NoError(t, queue.Start(context.Background()))
	t.Cleanup(func() { _ = queue.Shutdown(context.Background()) })

	_ = queue.Enqueue(context.Background(), simpleJob{})

	assert.Eventually(t, func() bool {
		return strings.Contains(logger.String(), "job failed on purpose")
	}, time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "retry is delayed")
	logger.Contains("level=WARN msg=\"job failed, will retry\"")
}

func TestMemoryQueue_Schedule(t *testing.T) {
	t.Parallel()

	queue := jobs.Test(t)

	assert.ErrorIs(t, queue.Schedule("@every 1h", "no-struct"), jobs.ErrScheduleFailed)
	assert.ErrorIs(t, queue.Schedule("not-a-cron-spec", simpleJob{}), jobs.ErrScheduleFailed)
	assert.NoError(t, queue.Schedule("@every 1h", simpleJob{}))
	assert.NoError(t, queue.Schedule("0 3 * * *", simpleJob{}))

	queue.Empty("schedules are only enqueued once they are due")
}
