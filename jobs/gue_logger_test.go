package jobs

import (
	"testing"

	"github.com/vgarvardt/gue/v5/adapter"

	"github.com/go-arrower/api/alog"
)

func TestGueLogAdapter(t *testing.T) {
	t.Parallel()

	logger := alog.Test(t)
	l := &gueLogAdapter{l: logger.Logger}

	l.Debug("debug-msg", adapter.F("some", "field"))
	l.Info("info-msg")
	l.With(adapter.F("worker", 1)).Error("error-msg")

	logger.Total(3)
	logger.Contains("level=API:DEBUG msg=debug-msg some=field")
	logger.Contains("level=API:DEBUG msg=info-msg")
	logger.Contains("level=API:INFO msg=error-msg worker=1")
}
