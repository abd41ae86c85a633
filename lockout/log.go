package lockout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-arrower/api/postgres"
)

var ErrLogFailed = errors.New("access attempt log failed")

// AttemptLog keeps the failed Attempts for later inspection in the admin.
type AttemptLog interface {
	Record(ctx context.Context, attempt Attempt, failures int) error
	Recent(ctx context.Context, limit int) ([]AccessAttempt, error)
}

type AccessAttempt struct {
	AttemptedAt time.Time `db:"attempted_at" json:"attemptedAt"`
	Username    string    `db:"username"     json:"username"`
	IPAddress   string    `db:"ip_address"   json:"ipAddress"`
	UserAgent   string    `db:"user_agent"   json:"userAgent"`
	Path        string    `db:"path"         json:"path"`
	ID          int64     `db:"id"           json:"id"`
	Failures    int       `db:"failures"     json:"failures"`
}

func NewPostgresLog(pgx *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pgx: pgx, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// PostgresLog writes into the access_attempts table.
type PostgresLog struct {
	pgx *pgxpool.Pool
	sb  sq.StatementBuilderType
}

var _ AttemptLog = (*PostgresLog)(nil)

func (l *PostgresLog) Record(ctx context.Context, attempt Attempt, failures int) error {
	const maxLen = 255

	query, args, err := l.sb.Insert("public.access_attempts").
		Columns("username", "ip_address", "user_agent", "path", "failures").
		Values(truncate(attempt.Username, maxLen), attempt.IPAddress, truncate(attempt.UserAgent, maxLen),
			truncate(attempt.Path, maxLen), failures).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogFailed, err) //nolint:errorlint // prevent err in api
	}

	if _, err := postgres.ConnOrTX(ctx, l.pgx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrLogFailed, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

// Recent returns the newest attempts first.
func (l *PostgresLog) Recent(ctx context.Context, limit int) ([]AccessAttempt, error) {
	query, args, err := l.sb.
		Select("id", "username", "ip_address", "user_agent", "path", "failures", "attempted_at").
		From("public.access_attempts").
		OrderBy("attempted_at DESC", "id DESC").
		Limit(uint64(max(limit, 1))). //nolint:gosec // limit is at least 1
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogFailed, err) //nolint:errorlint // prevent err in api
	}

	attempts := []AccessAttempt{}
	if err := pgxscan.Select(ctx, postgres.ConnOrTX(ctx, l.pgx), &attempts, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogFailed, err) //nolint:errorlint // prevent err in api
	}

	return attempts, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{mu: sync.Mutex{}, attempts: []AccessAttempt{}}
}

// MemoryLog keeps the attempts in memory, for local development and tests.
type MemoryLog struct {
	mu       sync.Mutex
	attempts []AccessAttempt
}

var _ AttemptLog = (*MemoryLog)(nil)

func (l *MemoryLog) Record(_ context.Context, attempt Attempt, failures int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts = append(l.attempts, AccessAttempt{
		ID:          int64(len(l.attempts) + 1),
		Username:    attempt.Username,
		IPAddress:   attempt.IPAddress,
		UserAgent:   attempt.UserAgent,
		Path:        attempt.Path,
		Failures:    failures,
		AttemptedAt: time.Now().UTC(),
	})

	return nil
}

func (l *MemoryLog) Recent(_ context.Context, limit int) ([]AccessAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := make([]AccessAttempt, 0, max(0, min(limit, len(l.attempts))))
	for i := len(l.attempts) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, l.attempts[i])
	}

	return recent, nil
}
