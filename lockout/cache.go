package lockout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-arrower/api/cache"
)

// NewCacheHandler returns a Handler counting the failures in c.
// Each failure restarts the cool-off time of its counters.
func NewCacheHandler(logger *slog.Logger, c cache.Cache, settings Settings, opts ...HandlerOpt) (*CacheHandler, error) {
	sets, err := paramSets(settings.Parameters)
	if err != nil {
		return nil, err
	}

	h := &CacheHandler{
		logger:   logger,
		cache:    c,
		settings: settings,
		sets:     sets,
		log:      nil,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

type HandlerOpt func(*CacheHandler)

// WithAttemptLog records every failed Attempt in log.
func WithAttemptLog(log AttemptLog) HandlerOpt {
	return func(h *CacheHandler) {
		h.log = log
	}
}

type CacheHandler struct {
	logger   *slog.Logger
	cache    cache.Cache
	settings Settings
	sets     [][]string
	log      AttemptLog
}

var _ Handler = (*CacheHandler)(nil)

func (h *CacheHandler) IsLocked(ctx context.Context, attempt Attempt) (bool, error) {
	if !h.settings.Enabled {
		return false, nil
	}

	for _, key := range h.keys(attempt) {
		val, err := h.cache.Get(ctx, key)
		if errors.Is(err, cache.ErrMiss) {
			continue
		}

		if err != nil {
			return false, fmt.Errorf("could not check lockout: %w", err)
		}

		failures, _ := strconv.Atoi(string(val))
		if failures >= h.settings.FailureLimit {
			return true, nil
		}
	}

	return false, nil
}

func (h *CacheHandler) UserLoginFailed(ctx context.Context, attempt Attempt) error {
	if !h.settings.Enabled {
		return nil
	}

	var maxFailures int64

	for _, key := range h.keys(attempt) {
		n, err := h.cache.Incr(ctx, key, 1)
		if err != nil {
			return fmt.Errorf("could not record failed login: %w", err)
		}

		if err := h.cache.Set(ctx, key, []byte(strconv.FormatInt(n, 10)), h.settings.CoolOffTime); err != nil {
			return fmt.Errorf("could not record failed login: %w", err)
		}

		maxFailures = max(maxFailures, n)
	}

	if h.log != nil {
		if err := h.log.Record(ctx, attempt, int(maxFailures)); err != nil {
			h.logger.InfoContext(ctx, "could not log access attempt", slog.Any("err", err))
		}
	}

	if maxFailures >= int64(h.settings.FailureLimit) {
		h.logger.WarnContext(ctx, "login locked out",
			slog.String("username", attempt.Username),
			slog.String("ip_address", attempt.IPAddress),
			slog.String("device", attempt.Device()),
			slog.Int64("failures", maxFailures),
		)
	}

	return nil
}

func (h *CacheHandler) UserLoggedIn(ctx context.Context, attempt Attempt) error {
	if !h.settings.Enabled || !h.settings.ResetOnSuccess {
		return nil
	}

	return h.Reset(ctx, attempt)
}

func (h *CacheHandler) Reset(ctx context.Context, attempt Attempt) error {
	for _, key := range h.keys(attempt) {
		if err := h.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("could not reset lockout: %w", err)
		}
	}

	return nil
}

// keys returns one cache key per parameter set.
func (h *CacheHandler) keys(attempt Attempt) []string {
	keys := make([]string, 0, len(h.sets))

	for _, set := range h.sets {
		values := make([]string, len(set))
		for i, p := range set {
			values[i] = p + "=" + attempt.value(p)
		}

		sum := sha256.Sum256([]byte(strings.Join(values, "&")))
		keys = append(keys, "lockout:"+hex.EncodeToString(sum[:]))
	}

	return keys
}
