package alog

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test returns a logger tuned for unit testing.
// It exposes log-specific assertions for the use in tests.
// The interface follows stretchr/testify as close as possible:
// every assert func returns a bool indicating whether the assertion was successful or not.
func Test(t *testing.T) *TestLogger {
	t.Helper()

	buf := &testBuffer{mu: sync.Mutex{}, lines: []*bytes.Buffer{}}

	logger := slog.New(newAPIHandler(
		WithLevel(LevelDebug),
		WithHandler(slog.NewTextHandler(buf, debugHandlerOptions())),
	))

	return &TestLogger{
		t:      t,
		Logger: logger,
		buf:    buf,
	}
}

// TestLogger is a special logger for unit testing.
// It can be injected as a logger dependency and
// offers assertions on all the lines logged with it.
type TestLogger struct {
	*slog.Logger

	t   *testing.T
	buf *testBuffer
}

var (
	_ Logger    = (*TestLogger)(nil)
	_ APILogger = (*TestLogger)(nil)
)

func (l *TestLogger) SetLevel(level slog.Level) {
	Unwrap(l.Logger).SetLevel(level)
}

func (l *TestLogger) Level() slog.Level {
	return Unwrap(l.Logger).Level()
}

func (l *TestLogger) SetUsers(userIDs ...string) {
	Unwrap(l.Logger).SetUsers(userIDs...)
}

// String returns the complete log output of each line logged.
func (l *TestLogger) String() string {
	return strings.Join(l.Lines(), "")
}

// Lines returns each logged line.
func (l *TestLogger) Lines() []string {
	l.buf.mu.Lock()
	defer l.buf.mu.Unlock()

	lines := make([]string, 0, len(l.buf.lines))
	for _, line := range l.buf.lines {
		lines = append(lines, line.String())
	}

	return lines
}

// Empty asserts that the logger has no lines logged.
func (l *TestLogger) Empty(msgAndArgs ...any) bool {
	l.t.Helper()

	if n := len(l.Lines()); n > 0 {
		return assert.Fail(l.t, fmt.Sprintf("logger is not empty, it has %d line(s)", n), msgAndArgs...)
	}

	return true
}

// NotEmpty asserts that the logger has at least one line.
func (l *TestLogger) NotEmpty(msgAndArgs ...any) bool {
	l.t.Helper()

	if len(l.Lines()) == 0 {
		return assert.Fail(l.t, "logger is empty, should not be", msgAndArgs...)
	}

	return true
}

// Contains asserts that at least one line contains the given substring.
func (l *TestLogger) Contains(contains string, msgAndArgs ...any) bool {
	l.t.Helper()

	for _, line := range l.Lines() {
		if strings.Contains(line, contains) {
			return true
		}
	}

	return assert.Fail(l.t, "log output does not have a line which contains: "+contains, msgAndArgs...)
}

// NotContains asserts that no line of the log output contains the given substring.
func (l *TestLogger) NotContains(notContains string, msgAndArgs ...any) bool {
	l.t.Helper()

	for _, line := range l.Lines() {
		if strings.Contains(line, notContains) {
			return assert.Fail(l.t, "log output contains: "+notContains+", should not be", msgAndArgs...)
		}
	}

	return true
}

// Total asserts that the logger has exactly total number of lines logged.
func (l *TestLogger) Total(total int, msgAndArgs ...any) bool {
	l.t.Helper()

	if n := len(l.Lines()); n != total {
		return assert.Fail(l.t, fmt.Sprintf("logger does not have %d lines, it has: %d", total, n), msgAndArgs...)
	}

	return true
}

type testBuffer struct {
	mu    sync.Mutex
	lines []*bytes.Buffer
}

func (b *testBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := &bytes.Buffer{}
	n, _ := buf.Write(p) // writing to a bytes.Buffer never fails

	b.lines = append(b.lines, buf)

	return n, nil
}
