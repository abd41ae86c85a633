package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-arrower/api/postgres"
	"github.com/go-arrower/api/repository"
)

const (
	usersTable = "public.users"

	pgUniqueViolation = "23505"
)

//nolint:gochecknoglobals // read only list of the selected columns
var userColumns = []string{
	"id::text AS id", "username", "email", "password_hash", "first_name", "last_name",
	"is_staff", "is_active", "is_superuser", "date_joined", "last_login",
}

func NewPostgresRepository(pgx *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pgx: pgx,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// PostgresRepository keeps the users in the users table.
// All methods take part in a transaction, if one is set in the context with postgres.CtxTX.
type PostgresRepository struct {
	pgx *pgxpool.Pool
	sb  sq.StatementBuilderType
}

var _ Repository = (*PostgresRepository)(nil)

func (repo *PostgresRepository) Create(ctx context.Context, user User) error {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid id %q: %v", repository.ErrSaveFailed, user.ID, err) //nolint:errorlint,lll // prevent err in api
	}

	query, args, err := repo.sb.Insert(usersTable).
		Columns("id", "username", "email", "password_hash", "first_name", "last_name",
			"is_staff", "is_active", "is_superuser", "date_joined", "last_login").
		Values(id, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.IsStaff, user.IsActive, user.IsSuperuser, user.DateJoined, user.LastLogin).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: could not build query: %v", repository.ErrSaveFailed, err) //nolint:errorlint // prevent err in api
	}

	return repo.exec(ctx, query, args)
}

func (repo *PostgresRepository) Save(ctx context.Context, user User) error {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid id %q: %v", repository.ErrSaveFailed, user.ID, err) //nolint:errorlint,lll // prevent err in api
	}

	query, args, err := repo.sb.Insert(usersTable).
		Columns("id", "username", "email", "password_hash", "first_name", "last_name",
			"is_staff", "is_active", "is_superuser", "date_joined", "last_login").
		Values(id, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.IsStaff, user.IsActive, user.IsSuperuser, user.DateJoined, user.LastLogin).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username, email = EXCLUDED.email, password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			is_staff = EXCLUDED.is_staff, is_active = EXCLUDED.is_active, is_superuser = EXCLUDED.is_superuser,
			date_joined = EXCLUDED.date_joined, last_login = EXCLUDED.last_login`).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: could not build query: %v", repository.ErrSaveFailed, err) //nolint:errorlint // prevent err in api
	}

	return repo.exec(ctx, query, args)
}

// exec translates a duplicate username into ErrAlreadyExists, keeping the driver error in the chain.
func (repo *PostgresRepository) exec(ctx context.Context, query string, args []any) error {
	_, err := postgres.ConnOrTX(ctx, repo.pgx).Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %w", repository.ErrAlreadyExists, err)
		}

		return fmt.Errorf("%w: %w", repository.ErrSaveFailed, err)
	}

	return nil
}

func (repo *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, fmt.Errorf("%w: invalid id %q", repository.ErrNotFound, id)
	}

	return repo.findOne(ctx, sq.Eq{"id": id})
}

func (repo *PostgresRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return repo.findOne(ctx, sq.Eq{"username": username})
}

func (repo *PostgresRepository) findOne(ctx context.Context, where sq.Eq) (User, error) {
	query, args, err := repo.sb.Select(userColumns...).From(usersTable).Where(where).ToSql()
	if err != nil {
		return User{}, fmt.Errorf("%w: could not build query: %v", repository.ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	var user User

	err = pgxscan.Get(ctx, postgres.ConnOrTX(ctx, repo.pgx), &user, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %v", repository.ErrNotFound, where)
	}

	if err != nil {
		return User{}, fmt.Errorf("%w: could not find user: %v", repository.ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return user, nil
}

func (repo *PostgresRepository) All(ctx context.Context, filter Filter) ([]User, error) {
	builder := repo.sb.Select(userColumns...).From(usersTable).
		OrderBy("date_joined", "username")
	builder = whereSearch(builder, filter.Search)

	if filter.Page.Size > 0 {
		builder = builder.Limit(uint64(filter.Page.Limit())).Offset(uint64(filter.Page.Offset())) //nolint:gosec // page is validated
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: could not build query: %v", repository.ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	users := []User{}

	if err := pgxscan.Select(ctx, postgres.ConnOrTX(ctx, repo.pgx), &users, query, args...); err != nil {
		return nil, fmt.Errorf("%w: could not list users: %v", repository.ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return users, nil
}

func (repo *PostgresRepository) Count(ctx context.Context, filter Filter) (int, error) {
	query, args, err := whereSearch(repo.sb.Select("COUNT(*)").From(usersTable), filter.Search).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: could not build query: %v", repository.ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	var count int

	if err := postgres.ConnOrTX(ctx, repo.pgx).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: could not count users: %v", repository.ErrStorage, err) //nolint:errorlint // prevent err in api
	}

	return count, nil
}

func (repo *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid id %q", repository.ErrNotFound, id)
	}

	query, args, err := repo.sb.Delete(usersTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: could not build query: %v", repository.ErrDeleteFailed, err) //nolint:errorlint // prevent err in api
	}

	tag, err := postgres.ConnOrTX(ctx, repo.pgx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrDeleteFailed, err) //nolint:errorlint // prevent err in api
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", repository.ErrNotFound, id)
	}

	return nil
}

func whereSearch(builder sq.SelectBuilder, search string) sq.SelectBuilder {
	if search == "" {
		return builder
	}

	pattern := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(search) + "%"

	return builder.Where(sq.Or{
		sq.ILike{"username": pattern},
		sq.ILike{"email": pattern},
		sq.ILike{"first_name || ' ' || last_name": pattern},
	})
}
