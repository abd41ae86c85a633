package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// queryTracer starts a client span per query, named after the SQL operation, e.g. "SELECT".
// The query arguments are not recorded, as they carry password hashes and session data.
type queryTracer struct {
	tracer trace.Tracer
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	conf := conn.Config()

	ctx, _ = t.tracer.Start(ctx, operation(data.SQL),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.name", conf.Database),
			attribute.String("db.user", conf.User),
			attribute.String("net.peer.name", conf.Host),
			attribute.Int("net.peer.port", int(conf.Port)),
			attribute.String("db.statement", data.SQL),
			attribute.Int("db.args", len(data.Args)),
		),
	)

	return ctx
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))

	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
}

func operation(sql string) string {
	op, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	if op == "" {
		return "query"
	}

	return strings.ToUpper(op)
}

// multiTracer starts the tracers in order and ends them in reverse order.
type multiTracer []pgx.QueryTracer

var _ pgx.QueryTracer = (multiTracer)(nil)

func (m multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range m {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}

	return ctx
}

func (m multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for i := len(m) - 1; i >= 0; i-- {
		m[i].TraceQueryEnd(ctx, conn, data)
	}
}
