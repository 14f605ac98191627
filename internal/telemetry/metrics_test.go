package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordsToProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	m, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}

	ctx := context.Background()
	m.RecordDirectoryOperation(ctx, "list", 200, 12)
	m.RecordDirectoryOperation(ctx, "list", 200, 8)
	m.RecordUploadBytes(ctx, 2048)
	m.RecordUserOperation(ctx, "create_user")
	m.RecordNotification(ctx, "success")
	m.RecordAuthFailure(ctx, "invalid_token")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}

	want := map[string]int64{
		"directory_client_requests_total": 2,
		"directory_upload_bytes_total":    2048,
		"user_operations_total":           1,
		"notifications_total":             1,
		"auth_failures_total":             1,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s = %d, want %d", name, sums[name], v)
		}
	}
}

func TestLoadConfig_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SDK_DISABLED", "")
	cfg := LoadConfig()
	if cfg.Enabled {
		t.Error("Expected export disabled without an endpoint")
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("Expected default endpoint, got %q", cfg.OTLPEndpoint)
	}

	p, err := InitProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitProvider failed: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown of empty provider failed: %v", err)
	}
}

func TestLoadConfig_EnabledByEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_TRACES_SAMPLER", "traceidratio")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	cfg := LoadConfig()
	if !cfg.Enabled || cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.SampleRatio != 0.5 {
		t.Errorf("Expected ratio 0.5, got %v", cfg.SampleRatio)
	}
	if cfg.Sampler().Description() != "TraceIDRatioBased{0.5}" {
		t.Errorf("Unexpected sampler %s", cfg.Sampler().Description())
	}
}
