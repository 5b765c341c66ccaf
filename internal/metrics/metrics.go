package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests        metric.Int64Counter
	HTTPDuration        metric.Float64Histogram
	PostsCreated        metric.Int64Counter
	PostsDeleted        metric.Int64Counter
	PostWriteFailures   metric.Int64Counter
	BackendReadFailures metric.Int64Counter
	AssetFailures       metric.Int64Counter
	LoginAttempts       metric.Int64Counter
}

// Setup registers the Prometheus exporter and returns the scrape handler
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// NewNoop returns instruments that record nothing
func NewNoop() *Metrics {
	m, err := newMetrics(noop.NewMeterProvider().Meter("noop"))
	if err != nil {
		// noop instruments cannot fail to register
		panic(err)
	}
	return m
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.HTTPRequests, err = meter.Int64Counter(
		"ink_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.HTTPDuration, err = meter.Float64Histogram(
		"ink_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, err
	}

	if m.PostsCreated, err = meter.Int64Counter(
		"ink_posts_created_total",
		metric.WithDescription("Posts committed to the backend"),
	); err != nil {
		return nil, err
	}

	if m.PostsDeleted, err = meter.Int64Counter(
		"ink_posts_deleted_total",
		metric.WithDescription("Delete statements committed to the backend"),
	); err != nil {
		return nil, err
	}

	if m.PostWriteFailures, err = meter.Int64Counter(
		"ink_post_write_failures_total",
		metric.WithDescription("Failed create or delete statements"),
	); err != nil {
		return nil, err
	}

	if m.BackendReadFailures, err = meter.Int64Counter(
		"ink_backend_read_failures_total",
		metric.WithDescription("Read statements that degraded to an empty result"),
	); err != nil {
		return nil, err
	}

	if m.AssetFailures, err = meter.Int64Counter(
		"ink_asset_failures_total",
		metric.WithDescription("Uploads dropped because the asset store failed"),
	); err != nil {
		return nil, err
	}

	if m.LoginAttempts, err = meter.Int64Counter(
		"ink_login_attempts_total",
		metric.WithDescription("Admin login attempts by outcome"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordPostCreated(ctx context.Context) {
	m.PostsCreated.Add(ctx, 1)
}

func (m *Metrics) RecordPostDeleted(ctx context.Context) {
	m.PostsDeleted.Add(ctx, 1)
}

func (m *Metrics) RecordPostWriteFailure(ctx context.Context, op string) {
	m.PostWriteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) RecordBackendReadFailure(ctx context.Context, op string) {
	m.BackendReadFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) RecordAssetFailure(ctx context.Context, strategy string) {
	m.AssetFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

func (m *Metrics) RecordLogin(ctx context.Context, success bool) {
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
