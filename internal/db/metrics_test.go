package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/parlorchat/parlor/internal/app/observability/metrics"
)

func TestQueryMetricsTracer(t *testing.T) {
	metrics.InitAppMetrics()
	tr := queryMetricsTracer{}

	ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), start, time.Second)

	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: assert.AnError})

	// A context that never went through TraceQueryStart must not panic.
	tr.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
}
