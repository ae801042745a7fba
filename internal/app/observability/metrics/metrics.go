package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	HTTPRequestsTotal      metric.Int64Counter
	HTTPRequestDuration    metric.Float64Histogram
	AuthRequestsTotal      metric.Int64Counter
	MessagesSentTotal      metric.Int64Counter
	UpdatesPublishedTotal  metric.Int64Counter
	UpdatesBufferedTotal   metric.Int64Counter
	WSConnectionsGauge     metric.Int64UpDownCounter
	DBQueryDurationSeconds metric.Float64Histogram
	DBQueryErrorsTotal     metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments only once,
// using the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("parlor")
		var err error
		m := &AppMetrics{}

		m.HTTPRequestsTotal, err = meter.Int64Counter(
			"http_requests_total",
			metric.WithDescription("Total number of HTTP requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_requests_total: %v", err)
		}

		m.HTTPRequestDuration, err = meter.Float64Histogram(
			"http_request_duration_seconds",
			metric.WithDescription("Duration of HTTP requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_request_duration_seconds: %v", err)
		}

		m.AuthRequestsTotal, err = meter.Int64Counter(
			"auth_requests_total",
			metric.WithDescription("Total number of authentication requests"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create auth_requests_total: %v", err)
		}

		m.MessagesSentTotal, err = meter.Int64Counter(
			"messages_sent_total",
			metric.WithDescription("Total number of chat messages persisted"),
			metric.WithUnit("{message}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create messages_sent_total: %v", err)
		}

		m.UpdatesPublishedTotal, err = meter.Int64Counter(
			"updates_published_total",
			metric.WithDescription("Total number of update events fanned out to subscribers"),
			metric.WithUnit("{update}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create updates_published_total: %v", err)
		}

		m.UpdatesBufferedTotal, err = meter.Int64Counter(
			"updates_buffered_total",
			metric.WithDescription("Total number of update events buffered for offline users"),
			metric.WithUnit("{update}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create updates_buffered_total: %v", err)
		}

		m.WSConnectionsGauge, err = meter.Int64UpDownCounter(
			"ws_connections_current",
			metric.WithDescription("Current number of open update WebSocket connections"),
			metric.WithUnit("{connection}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create ws_connections_current: %v", err)
		}

		m.DBQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		m.DBQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of failed database queries"),
			metric.WithUnit("{query}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the global metrics instance. InitAppMetrics must run first.
func Get() *AppMetrics {
	return appMetrics
}
