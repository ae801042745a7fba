package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlorchat/parlor/internal/app/observability/metrics"
)

type queryStartKey struct{}

// queryMetricsTracer records per-query latency and error counts through the
// pgx tracer hooks. It is installed on every pool connection in Init.
type queryMetricsTracer struct{}

func (queryMetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (queryMetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	m := metrics.Get()
	if m == nil {
		return
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		m.DBQueryDurationSeconds.Record(ctx, time.Since(start).Seconds())
	}
	if data.Err != nil {
		m.DBQueryErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("error", data.Err.Error())))
	}
}
