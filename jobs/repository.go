package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-arrower/api/postgres"
)

var (
	ErrQueryFailed  = errors.New("query failed")
	ErrDeleteFailed = fmt.Errorf("%w: could not delete job. it might be processing already", ErrQueryFailed)
)

type (
	PendingJob struct {
		CreatedAt  time.Time `db:"created_at"  json:"createdAt"`
		UpdatedAt  time.Time `db:"updated_at"  json:"updatedAt"`
		RunAt      time.Time `db:"run_at"      json:"runAt"`
		ID         string    `db:"job_id"      json:"id"`
		Type       string    `db:"job_type"    json:"type"`
		Queue      string    `db:"queue"       json:"queue"`
		Payload    string    `db:"args"        json:"payload"`
		LastError  *string   `db:"last_error"  json:"lastError"`
		ErrorCount int32     `db:"error_count" json:"errorCount"`
		Priority   int16     `db:"priority"    json:"priority"`
	}

	// Repository gives insight into the jobs persisted by a PostgresQueue.
	Repository interface {
		Queues(ctx context.Context) ([]string, error)
		PendingJobs(ctx context.Context, queue string) ([]PendingJob, error)
		Delete(ctx context.Context, jobID string) error
	}
)

//nolint:gochecknoglobals // squirrel builder is immutable
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func NewPostgresRepository(pgx *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pgx: pgx}
}

type PostgresRepository struct {
	pgx *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func (repo *PostgresRepository) Queues(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("DISTINCT queue").From("public.gue_jobs").OrderBy("queue").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err) //nolint:errorlint // prevent err in api
	}

	queues := []string{}

	err = pgxscan.Select(ctx, postgres.ConnOrTX(ctx, repo.pgx), &queues, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err) //nolint:errorlint // prevent err in api
	}

	return queues, nil
}

func (repo *PostgresRepository) PendingJobs(ctx context.Context, queue string) ([]PendingJob, error) {
	query, args, err := psql.
		Select("job_id", "priority", "run_at", "job_type", "convert_from(args, 'UTF8') AS args",
			"error_count", "last_error", "queue", "created_at", "updated_at").
		From("public.gue_jobs").
		Where(sq.Eq{"queue": queue}).
		OrderBy("priority", "run_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err) //nolint:errorlint // prevent err in api
	}

	pending := []PendingJob{}

	err = pgxscan.Select(ctx, postgres.ConnOrTX(ctx, repo.pgx), &pending, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err) //nolint:errorlint // prevent err in api
	}

	return pending, nil
}

// Delete removes a pending job. Jobs locked by a worker can not be deleted.
func (repo *PostgresRepository) Delete(ctx context.Context, jobID string) error {
	query, args, err := psql.Delete("public.gue_jobs").
		Where(sq.Expr("job_id = (SELECT job_id FROM public.gue_jobs WHERE job_id = ? FOR UPDATE SKIP LOCKED)", jobID)).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err) //nolint:errorlint // prevent err in api
	}

	tag, err := postgres.ConnOrTX(ctx, repo.pgx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err) //nolint:errorlint // prevent err in api
	}

	if tag.RowsAffected() == 0 {
		return ErrDeleteFailed
	}

	return nil
}
