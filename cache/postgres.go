package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-arrower/api/postgres"
)

const defaultTable = "public.cache_entries"

// NewPostgres returns a Cache stored in the table named by Location.
// The table is created by the postgres migrations.
func NewPostgres(pgx *pgxpool.Pool, opts Options) (*Postgres, error) {
	table := opts.Location
	if table == "" {
		table = defaultTable
	}

	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrInvalidOptions, table)
	}

	return &Postgres{
		pgx:     pgx,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		table:   table,
		key:     keyFunc(opts.KeyPrefix),
		prefix:  keyFunc(opts.KeyPrefix)(""),
		timeout: timeoutOrDefault(opts.Timeout),
	}, nil
}

type Postgres struct {
	pgx *pgxpool.Pool
	sb  sq.StatementBuilderType

	table   string
	key     func(string) string
	prefix  string
	timeout time.Duration
}

var (
	_ Cache  = (*Postgres)(nil)
	_ Culler = (*Postgres)(nil)
)

func (c *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := c.sb.Select("value").From(c.table).
		Where(sq.Eq{"cache_key": c.key(key)}).
		Where("expires_at > NOW()").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	var value []byte

	err = pgxscan.Get(ctx, postgres.ConnOrTX(ctx, c.pgx), &value, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrMiss
		}

		return nil, fmt.Errorf("%w: could not get value: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	return value, nil
}

func (c *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query, args, err := c.sb.Insert(c.table).
		Columns("cache_key", "value", "expires_at").
		Values(c.key(key), value, expiresAt(time.Now().UTC(), ttl, c.timeout)).
		Suffix("ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	if _, err = postgres.ConnOrTX(ctx, c.pgx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: could not set value: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

func (c *Postgres) Delete(ctx context.Context, key string) error {
	query, args, err := c.sb.Delete(c.table).Where(sq.Eq{"cache_key": c.key(key)}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	if _, err = postgres.ConnOrTX(ctx, c.pgx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: could not delete value: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

// Incr updates the counter in a single statement, so concurrent increments are not lost.
func (c *Postgres) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %[1]s AS t (cache_key, value, expires_at)
VALUES ($1, convert_to($2::TEXT, 'UTF8'), $3)
ON CONFLICT (cache_key) DO UPDATE SET
	value = CASE WHEN t.expires_at > NOW()
		THEN convert_to((convert_from(t.value, 'UTF8')::BIGINT + $4::BIGINT)::TEXT, 'UTF8')
		ELSE EXCLUDED.value END,
	expires_at = CASE WHEN t.expires_at > NOW() THEN t.expires_at ELSE EXCLUDED.expires_at END
RETURNING convert_from(value, 'UTF8')`, c.table)

	var value string

	err := postgres.ConnOrTX(ctx, c.pgx).QueryRow(ctx, query,
		c.key(key), strconv.FormatInt(delta, 10), expiresAt(time.Now().UTC(), 0, c.timeout), delta,
	).Scan(&value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" { // invalid_text_representation
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
		}

		return 0, fmt.Errorf("%w: could not increment value: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
	}

	return n, nil
}

// Clear removes all entries with the key prefix of this cache.
func (c *Postgres) Clear(ctx context.Context) error {
	del := c.sb.Delete(c.table)
	if c.prefix != "" {
		del = del.Where(sq.Like{"cache_key": escapeLike(c.prefix) + "%"})
	}

	query, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	if _, err = postgres.ConnOrTX(ctx, c.pgx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: could not clear cache: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	return nil
}

func (c *Postgres) Cull(ctx context.Context) (int64, error) {
	query, args, err := c.sb.Delete(c.table).Where("expires_at <= NOW()").ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	tag, err := postgres.ConnOrTX(ctx, c.pgx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: could not cull cache: %v", ErrCache, err) //nolint:errorlint // prevent err in api
	}

	return tag.RowsAffected(), nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))

	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}

		out = append(out, r)
	}

	return string(out)
}
