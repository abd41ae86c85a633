package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// ClearSessions is the periodic job removing the expired sessions from the database.
type ClearSessions struct{}

func (ClearSessions) JobType() string { return "auth.ClearSessions" }

// SessionCleaner is implemented by session stores that keep the sessions server side.
type SessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

var _ SessionCleaner = (*PGSessionStore)(nil)

func ClearSessionsFunc(logger *slog.Logger, store SessionCleaner) func(context.Context, ClearSessions) error {
	return func(ctx context.Context, _ ClearSessions) error {
		n, err := store.DeleteExpired(ctx)
		if err != nil {
			return fmt.Errorf("could not clear sessions: %w", err)
		}

		logger.DebugContext(ctx, "cleared expired sessions", slog.Int64("removed", n))

		return nil
	}
}
