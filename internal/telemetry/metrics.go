package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the custom instruments. It satisfies the recorder
// interfaces of the directory client, the console controller, the
// notifiers and the auth middleware.
type Metrics struct {
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	DirectoryRequestsTotal metric.Int64Counter
	DirectoryDurationMs    metric.Float64Histogram
	UploadBytesTotal       metric.Int64Counter

	UserOperationsTotal metric.Int64Counter
	NotificationsTotal  metric.Int64Counter

	AuthFailuresTotal       metric.Int64Counter
	PermissionCheckDuration metric.Float64Histogram
}

// InitMetrics creates the instruments on the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/WailSalutem-Health-Care/user-directory")
	m := &Metrics{}
	var err error

	counters := []struct {
		dst        *metric.Int64Counter
		name, desc string
		unit       string
	}{
		{&m.HTTPRequestsTotal, "http_server_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.DirectoryRequestsTotal, "directory_client_requests_total", "Total number of requests sent to the directory", "{request}"},
		{&m.UploadBytesTotal, "directory_upload_bytes_total", "Profile image bytes uploaded", "By"},
		{&m.UserOperationsTotal, "user_operations_total", "Total number of user operations dispatched by the console", "{operation}"},
		{&m.NotificationsTotal, "notifications_total", "Total number of notifications delivered", "{notification}"},
		{&m.AuthFailuresTotal, "auth_failures_total", "Total number of authentication failures", "{failure}"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit)); err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst        *metric.Float64Histogram
		name, desc string
	}{
		{&m.HTTPDurationMs, "http_server_duration_milliseconds", "HTTP request duration in milliseconds"},
		{&m.DirectoryDurationMs, "directory_client_duration_milliseconds", "Directory request duration in milliseconds"},
		{&m.PermissionCheckDuration, "permission_check_duration_ms", "Permission check duration in milliseconds"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("ms")); err != nil {
			return nil, err
		}
	}

	log.Println("✓ Custom metrics initialized")
	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPDurationMs.Record(ctx, durationMs, attrs)
}

// RecordDirectoryOperation records one request to the directory; statusCode is 0 on transport failure
func (m *Metrics) RecordDirectoryOperation(ctx context.Context, operation string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("http_status_code", statusCode),
	)
	m.DirectoryRequestsTotal.Add(ctx, 1, attrs)
	m.DirectoryDurationMs.Record(ctx, durationMs, attrs)
}

func (m *Metrics) RecordUploadBytes(ctx context.Context, n int64) {
	m.UploadBytesTotal.Add(ctx, n)
}

// RecordUserOperation records a user operation metric
func (m *Metrics) RecordUserOperation(ctx context.Context, operation string) {
	m.UserOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

func (m *Metrics) RecordNotification(ctx context.Context, severity string) {
	m.NotificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
	))
}

// RecordAuthFailure records an authentication failure metric
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordPermissionCheck records a permission check duration metric
func (m *Metrics) RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool) {
	m.PermissionCheckDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("permission", permission),
		attribute.Bool("allowed", allowed),
	))
}
