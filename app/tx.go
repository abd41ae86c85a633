package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-arrower/api/postgres"
)

// InTx runs h inside a database transaction, so the repositories using
// postgres.ConnOrTX take part in it. A transaction already in ctx is joined and not committed.
// With a nil pool, e.g. next to the memory repositories, h is called as is.
func InTx[T any](pool *pgxpool.Pool, h Handler[T]) Handler[T] {
	return HandlerFunc[T](func(ctx context.Context, in T) error {
		if pool == nil {
			return h.H(ctx, in)
		}

		if _, ok := ctx.Value(postgres.CtxTX).(pgx.Tx); ok {
			return h.H(ctx, in)
		}

		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if err := h.H(context.WithValue(ctx, postgres.CtxTX, tx), in); err != nil {
				return fmt.Errorf("%s: %w", name(in), err)
			}

			return nil
		})
	})
}
