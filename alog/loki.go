package alog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/afiskon/promtail-client/promtail"
)

type (
	LokiHandlerOptions struct {
		Labels  map[string]string
		PushURL string
	}

	// LokiHandler ships the records to a loki instance.
	// Use it for development setups, that mimic a production setting with loki & grafana.
	// In production log to stderr and let the container runtime ship the logs.
	LokiHandler struct { //nolint:govet // fieldalignment not as important as readability.
		mu     *sync.Mutex
		client promtail.Client

		renderer slog.Handler
		output   *bytes.Buffer
	}
)

// NewLokiHandler returns a handler pushing to opt.PushURL.
// If loki is not reachable, records are dropped until a retry succeeds.
func NewLokiHandler(opt *LokiHandlerOptions) *LokiHandler {
	conf := promtailConfig(opt)
	client := newPromtailClient(conf)

	// the json of a record is rendered into the buffer and then pushed.
	buf := &bytes.Buffer{}
	renderer := slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level:       LevelDebug, // the level is controlled by apiHandler.
		AddSource:   false,
		ReplaceAttr: MapLogLevelsToName,
	})

	handler := &LokiHandler{
		mu:       &sync.Mutex{},
		client:   client,
		renderer: renderer,
		output:   buf,
	}

	if client == nil {
		go retryLokiConnection(handler, conf)
	}

	return handler
}

func promtailConfig(opt *LokiHandlerOptions) promtail.ClientConfig {
	if opt == nil {
		opt = &LokiHandlerOptions{}
	}

	pushURL := opt.PushURL
	if pushURL == "" {
		pushURL = "http://localhost:3100/api/prom/push"
	}

	labels := opt.Labels
	if len(labels) == 0 {
		labels = map[string]string{"app": "api"}
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}

	return promtail.ClientConfig{
		PushURL:            pushURL,
		BatchWait:          1 * time.Second,
		BatchEntriesNumber: 1,
		SendLevel:          promtail.DEBUG,
		PrintLevel:         promtail.DISABLE,
		Labels:             "{" + strings.Join(pairs, ",") + "}",
	}
}

func retryLokiConnection(handler *LokiHandler, conf promtail.ClientConfig) {
	const lokiRetryInterval = 15 * time.Second

	ticker := time.NewTicker(lokiRetryInterval)
	defer ticker.Stop()

	for range ticker.C {
		client := newPromtailClient(conf)
		if client == nil {
			continue
		}

		handler.mu.Lock()
		handler.client = client
		handler.mu.Unlock()

		return
	}
}

func newPromtailClient(conf promtail.ClientConfig) promtail.Client { //nolint:ireturn // promtail only returns the interface
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, conf.PushURL, nil)
	if err != nil {
		return nil
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}

	_ = res.Body.Close()

	client, _ := promtail.NewClientJson(conf) // promtail always returns a nil error

	return client
}

var _ slog.Handler = (*LokiHandler)(nil)

func (l *LokiHandler) Handle(c context.Context, record slog.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return nil
	}

	err := l.renderer.Handle(c, record)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	l.client.Infof("%s", l.output.String())
	l.output.Reset()

	return nil
}

func (l *LokiHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (l *LokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LokiHandler{
		mu:       l.mu,
		client:   l.client,
		renderer: l.renderer.WithAttrs(attrs),
		output:   l.output,
	}
}

func (l *LokiHandler) WithGroup(name string) slog.Handler {
	return &LokiHandler{
		mu:       l.mu,
		client:   l.client,
		renderer: l.renderer.WithGroup(name),
		output:   l.output,
	}
}
