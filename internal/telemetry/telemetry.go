// Package telemetry sets up OpenTelemetry tracing and metrics export over OTLP/gRPC.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceNamespace string
	ServiceVersion   string
	Environment      string
	OTLPEndpoint     string
	TracesSampler    string
	SampleRatio      float64
	MetricsInterval  time.Duration
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadConfig loads OpenTelemetry configuration from environment variables.
// Export is off unless OTEL_EXPORTER_OTLP_ENDPOINT is set or OTEL_SDK_DISABLED=false.
func LoadConfig() Config {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	enabled := endpoint != ""
	if v := os.Getenv("OTEL_SDK_DISABLED"); v != "" {
		if disabled, err := strconv.ParseBool(v); err == nil {
			enabled = !disabled
		}
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	ratio := 0.1
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			ratio = f
		}
	}

	interval := 30 * time.Second
	if v := os.Getenv("OTEL_METRICS_EXPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}

	return Config{
		Enabled:          enabled,
		ServiceName:      envOr("OTEL_SERVICE_NAME", "user-directory"),
		ServiceNamespace: envOr("OTEL_SERVICE_NAMESPACE", "userdirectory"),
		ServiceVersion:   envOr("OTEL_SERVICE_VERSION", "1.0.0"),
		Environment:      envOr("ENVIRONMENT", "development"),
		OTLPEndpoint:     endpoint,
		TracesSampler:    envOr("OTEL_TRACES_SAMPLER", "always_on"),
		SampleRatio:      ratio,
		MetricsInterval:  interval,
	}
}

// Provider holds the OpenTelemetry providers. Either may be nil when its
// exporter could not be created.
type Provider struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// InitProvider installs global tracer and meter providers.
// A disabled config or an unreachable collector yields a provider that
// exports nothing; the process keeps running.
func InitProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		log.Println("OpenTelemetry export disabled")
		return &Provider{}, nil
	}
	log.Printf("Initializing OpenTelemetry with endpoint: %s", cfg.OTLPEndpoint)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceNamespace(cfg.ServiceNamespace),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{}

	if tp, err := initTracerProvider(ctx, cfg, res); err != nil {
		log.Printf("Warning: failed to initialize tracer provider: %v", err)
	} else {
		otel.SetTracerProvider(tp)
		p.TracerProvider = tp
		log.Println("✓ OpenTelemetry tracer provider initialized")
	}

	if mp, err := initMeterProvider(ctx, cfg, res); err != nil {
		log.Printf("Warning: failed to initialize meter provider: %v", err)
	} else {
		otel.SetMeterProvider(mp)
		p.MeterProvider = mp
		log.Println("✓ OpenTelemetry meter provider initialized")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

// Sampler maps the configured sampler name
func (c Config) Sampler() trace.Sampler {
	switch c.TracesSampler {
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(c.SampleRatio)
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(c.SampleRatio))
	default:
		return trace.AlwaysSample()
	}
}

func initTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(cfg.Sampler()),
		trace.WithBatcher(exporter,
			trace.WithBatchTimeout(5*time.Second),
			trace.WithMaxExportBatchSize(512),
		),
	), nil
}

func initMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlpmetricgrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(cfg.MetricsInterval),
		)),
	), nil
}

// Shutdown flushes and stops both providers, returning every failure
func (p *Provider) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("tracer provider: %w", err))
		} else {
			log.Println("✓ Tracer provider shut down successfully")
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("meter provider: %w", err))
		} else {
			log.Println("✓ Meter provider shut down successfully")
		}
	}

	return result.ErrorOrNil()
}
