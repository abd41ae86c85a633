package alog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-arrower/api/ctx"
)

// LoggerOpt allows to initialise a logger with custom options.
type LoggerOpt func(logger *apiHandler)

// WithHandler adds a slog.Handler to be logged to.
// You can set as many as you want.
func WithHandler(h slog.Handler) LoggerOpt {
	return func(l *apiHandler) {
		l.handlers = append(l.handlers, h)
	}
}

// WithLevel initialises the logger with a starting level.
// To change the level at runtime use Unwrap(logger).SetLevel(LevelInfo).
func WithLevel(level slog.Level) LoggerOpt {
	return func(l *apiHandler) {
		l.state.level.Set(level)
	}
}

// WithUsers logs every record of the given users, independent of the level.
// To change the users at runtime use Unwrap(logger).SetUsers.
func WithUsers(userIDs ...string) LoggerOpt {
	return func(l *apiHandler) {
		l.state.users = userIDs
	}
}

// New returns a production ready logger.
//
// If no options are given it creates a default handler, logging JSON to Stderr.
// Otherwise, use WithHandler to set your own loggers.
func New(opts ...LoggerOpt) *slog.Logger {
	return slog.New(newAPIHandler(opts...))
}

// NewDevelopment returns a logger ready for local development purposes.
func NewDevelopment() *slog.Logger {
	return New(
		WithLevel(slog.LevelDebug),
		WithHandler(slog.NewTextHandler(os.Stderr, debugHandlerOptions())),
	)
}

func newAPIHandler(opts ...LoggerOpt) *apiHandler {
	logger := &apiHandler{
		handlers: []slog.Handler{},
		state:    &levelState{mu: sync.RWMutex{}, level: &slog.LevelVar{}, users: nil},
	}

	for _, opt := range opts {
		opt(logger)
	}

	if len(logger.handlers) == 0 {
		logger.handlers = []slog.Handler{slog.NewJSONHandler(os.Stderr, defaultHandlerOptions())}
	}

	return logger
}

// levelState is shared by all handlers derived via WithAttrs or WithGroup,
// so that changing it applies to every copy of the logger.
type levelState struct {
	mu    sync.RWMutex
	level *slog.LevelVar
	users []string
}

func (s *levelState) isDebugUser(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Contains(s.users, userID)
}

// apiHandler offers to log to multiple handlers at the same time.
// It adds the trace and span ids to each record and records
// each log line as an event of the active span.
// The level of individual handlers set via WithHandler is ignored.
type apiHandler struct {
	state    *levelState
	handlers []slog.Handler
}

var (
	_ slog.Handler = (*apiHandler)(nil)
	_ APILogger    = (*apiHandler)(nil)
)

func (l *apiHandler) Enabled(c context.Context, level slog.Level) bool {
	if level >= l.state.level.Level() {
		return true
	}

	userID, hasUser := c.Value(ctx.CtxAuthUserID).(string)

	return hasUser && l.state.isDebugUser(userID)
}

func (l *apiHandler) Handle(c context.Context, record slog.Record) error {
	span := trace.SpanFromContext(c)

	record = addTraceAndSpanIDsToLogs(span, record)

	if attrs, ok := FromContext(c); ok {
		record.AddAttrs(attrs...)
	}

	if span.IsRecording() {
		addLogsToActiveSpanAsEvent(span, attrsFromRecord(record), record)
	}

	var retErr error

	for _, h := range l.handlers {
		retErr = errors.Join(retErr, h.Handle(c, record))
	}

	return retErr
}

func (l *apiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(l.handlers))

	for i, h := range l.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}

	return &apiHandler{state: l.state, handlers: handlers}
}

func (l *apiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(l.handlers))

	for i, h := range l.handlers {
		handlers[i] = h.WithGroup(name)
	}

	return &apiHandler{state: l.state, handlers: handlers}
}

// SetLevel changes the level for all handlers,
// including the ones "copied" via any WithX method.
func (l *apiHandler) SetLevel(level slog.Level) {
	l.state.level.Set(level)
}

// Level returns the log level of the handler.
func (l *apiHandler) Level() slog.Level {
	return l.state.level.Level()
}

// SetUsers replaces the list of users, whose records are logged independent of the level.
func (l *apiHandler) SetUsers(userIDs ...string) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	l.state.users = userIDs
}

func (l *apiHandler) NumHandlers() int {
	return len(l.handlers)
}

func addTraceAndSpanIDsToLogs(span trace.Span, record slog.Record) slog.Record {
	sCtx := span.SpanContext()

	if sCtx.HasTraceID() {
		record.AddAttrs(slog.String("traceID", sCtx.TraceID().String()))
	}

	if sCtx.HasSpanID() {
		record.AddAttrs(slog.String("spanID", sCtx.SpanID().String()))
	}

	return record
}

func addLogsToActiveSpanAsEvent(span trace.Span, attrs []attribute.KeyValue, record slog.Record) {
	span.AddEvent("log", trace.WithAttributes(attrs...))

	if record.Level >= slog.LevelError {
		span.SetStatus(codes.Error, record.Message)
	}
}

func attrsFromRecord(record slog.Record) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("log.severity", record.Level.String()),
		attribute.String("log.message", record.Message),
	}

	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, attribute.String(a.Key, a.Value.String()))

		return true // process next attr
	})

	return attrs
}

// APILogger offers additional control over the logger at run time.
// Unwrap a logger to get access to this features.
type APILogger interface {
	SetLevel(level slog.Level)
	Level() slog.Level
	SetUsers(userIDs ...string)
}

// Unwrap unwraps the given logger and returns an APILogger.
// In case of an invalid implementation of logger,
// it returns nil.
func Unwrap(logger Logger) APILogger { //nolint:ireturn // interface required to return a TestLogger and apiHandler
	if l, ok := logger.(*TestLogger); ok {
		return l
	}

	if l, ok := logger.(*slog.Logger); ok {
		if h, ok := l.Handler().(*apiHandler); ok {
			return h
		}
	}

	return nil
}

func defaultHandlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		AddSource:   true,
		Level:       LevelDebug, // the level of apiHandler is used for all handlers.
		ReplaceAttr: MapLogLevelsToName,
	}
}

// debugHandlerOptions keep the log output more readable, by removing not essential keys.
func debugHandlerOptions() *slog.HandlerOptions {
	opt := defaultHandlerOptions()
	opt.AddSource = false

	return opt
}
