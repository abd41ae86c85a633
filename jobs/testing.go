package jobs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test returns a TestQueue tuned for unit testing.
// Jobs are not processed in the background, call Process to work them.
func Test(t *testing.T) *TestQueue {
	t.Helper()

	queue := NewMemoryQueue()

	return &TestQueue{
		MemoryQueue: queue,
		TestAssertions: &TestAssertions{
			queue: queue,
			t:     t,
		},
	}
}

// TestQueue is a special Queue for unit testing.
// It can be injected as a dependency in any application and
// exposes TestAssertions on all the Jobs stored in it.
type TestQueue struct {
	*MemoryQueue
	*TestAssertions
}

var _ Queue = (*TestQueue)(nil)

// TestAssertions are assertions that work on a Queue.
// The interface follows stretchr/testify as close as possible:
// every assert func returns a bool indicating whether the assertion was successful or not.
type TestAssertions struct {
	queue *MemoryQueue
	t     *testing.T
}

// Empty asserts that the queue has no pending Jobs.
func (a *TestAssertions) Empty(msgAndArgs ...any) bool {
	a.t.Helper()

	if n := len(a.queue.pending()); n != 0 {
		return assert.Fail(a.t, fmt.Sprintf("queue is not empty, it has %d pending jobs", n), msgAndArgs...)
	}

	return true
}

// NotEmpty asserts that the queue has at least one pending Job.
func (a *TestAssertions) NotEmpty(msgAndArgs ...any) bool {
	a.t.Helper()

	if len(a.queue.pending()) == 0 {
		return assert.Fail(a.t, "queue is empty, should not be", msgAndArgs...)
	}

	return true
}

// Total asserts that the queue has exactly total pending Jobs.
func (a *TestAssertions) Total(total int, msgAndArgs ...any) bool {
	a.t.Helper()

	if n := len(a.queue.pending()); n != total {
		return assert.Fail(a.t, fmt.Sprintf("queue does not have %d jobs, it has %d", total, n), msgAndArgs...)
	}

	return true
}

// Queued asserts that the queue has exactly total pending Jobs of the type of job.
func (a *TestAssertions) Queued(job Job, total int, msgAndArgs ...any) bool {
	a.t.Helper()

	jobType, err := TypeOf(job)
	if err != nil {
		return assert.Fail(a.t, "invalid job type", msgAndArgs...)
	}

	n := 0

	for _, j := range a.queue.pending() {
		if j.jobType == jobType {
			n++
		}
	}

	if n != total {
		return assert.Fail(a.t, fmt.Sprintf("expected %d jobs of type %s, got %d", total, jobType, n), msgAndArgs...)
	}

	return true
}

// GetFirst returns the first pending Job or nil, if the queue is empty.
func (a *TestAssertions) GetFirst() Job {
	pending := a.queue.pending()
	if len(pending) == 0 {
		return nil
	}

	return pending[0].job
}

// Clear removes all pending Jobs.
func (a *TestAssertions) Clear() {
	a.queue.clear()
}

// Process works all pending Jobs and fails the test, if any of them returns an error.
func (a *TestAssertions) Process(ctx context.Context, msgAndArgs ...any) bool {
	a.t.Helper()

	return assert.NoError(a.t, a.queue.RunPending(ctx), msgAndArgs...)
}
