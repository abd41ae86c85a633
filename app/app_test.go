package app_test

import (
	"context"
	"strings"
	"testing"

	prometheusSDK "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/app"
)

type exportJob struct {
	Format string `validate:"required,oneof=csv json"`
}

func TestLogged(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		logger := alog.Test(t)

		err := app.Logged(logger.Logger, app.Succeeding[exportJob]()).H(context.Background(), exportJob{})
		assert.NoError(t, err)

		logger.Contains(`msg="run handler" handler=app_test.exportJob`)
		logger.Contains(`msg="handler done"`)
		logger.NotContains("handler failed")
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()

		logger := alog.Test(t)

		err := app.Logged(logger.Logger, app.Failing[exportJob]()).H(context.Background(), exportJob{})
		assert.ErrorIs(t, err, app.ErrHandlerFailed)

		logger.Contains(`msg="handler failed"`)
		logger.Contains(`error="handler failed"`)
	})
}

func TestValidated(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		h := app.Validated(nil, app.HandlerFunc[exportJob](func(ctx context.Context, _ exportJob) error {
			assert.True(t, app.PassedValidation(ctx))

			return nil
		}))

		assert.NoError(t, h.H(context.Background(), exportJob{Format: "csv"}))
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		called := false
		h := app.Validated(nil, app.HandlerFunc[exportJob](func(context.Context, exportJob) error {
			called = true

			return nil
		}))

		err := h.H(context.Background(), exportJob{Format: "xml"})
		assert.ErrorIs(t, err, app.ErrInvalidInput)
		assert.Contains(t, err.Error(), "app_test.exportJob")
		assert.False(t, called)
		assert.False(t, app.PassedValidation(context.Background()))
	})
}

func TestTraced(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	assert.NoError(t, app.Traced(provider, app.Succeeding[exportJob]()).H(context.Background(), exportJob{}))
	assert.Error(t, app.Traced(provider, app.Failing[*exportJob]()).H(context.Background(), &exportJob{}))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "app_test.exportJob", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "app_test.exportJob", spans[1].Name(), "pointers are named after their element")
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}

func TestMetered(t *testing.T) {
	t.Parallel()

	registry := prometheusSDK.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry), prometheus.WithoutScopeInfo())
	require.NoError(t, err)

	meterProvider := metric.NewMeterProvider(metric.WithReader(exporter))

	_ = app.Metered(meterProvider, app.Succeeding[exportJob]()).H(context.Background(), exportJob{})
	_ = app.Metered(meterProvider, app.Failing[exportJob]()).H(context.Background(), exportJob{})
	_ = app.Metered(meterProvider, app.Failing[exportJob]()).H(context.Background(), exportJob{})

	err = testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP app_handlers_total calls of app handlers
# TYPE app_handlers_total counter
app_handlers_total{handler="app_test.exportJob",outcome="failure"} 2
app_handlers_total{handler="app_test.exportJob",outcome="success"} 1
`), "app_handlers_total")
	assert.NoError(t, err)
}

func TestInstrumented(t *testing.T) {
	t.Parallel()

	logger := alog.Test(t)
	recorder := tracetest.NewSpanRecorder()

	h := app.Instrumented(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
		metric.NewMeterProvider(),
		logger.Logger,
		app.Succeeding[exportJob](),
	)

	assert.NoError(t, h.H(context.Background(), exportJob{}))
	assert.Len(t, recorder.Ended(), 1)
	logger.Contains("handler done")
}

func TestInTx_WithoutPool(t *testing.T) {
	t.Parallel()

	assert.NoError(t, app.InTx(nil, app.Succeeding[exportJob]()).H(context.Background(), exportJob{}))
	assert.ErrorIs(t, app.InTx(nil, app.Failing[exportJob]()).H(context.Background(), exportJob{}), app.ErrHandlerFailed)
}
