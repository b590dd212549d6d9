// Package tracing installs the OpenTelemetry tracer provider used by the
// lifecycle engine and the archive manager.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls trace export.
type Config struct {
	Endpoint    string  // OTLP/HTTP collector host:port. Empty disables export.
	Insecure    bool    // Plain HTTP to the collector. Default false.
	ServiceName string  // Default pallet-registry.
	SampleRatio float64 // Fraction of root spans sampled, 0 to 1. Default 1.
}

// DefaultConfig returns the default tracing configuration.
func DefaultConfig() Config {
	return Config{ServiceName: "pallet-registry", SampleRatio: 1}
}

// ConfigFromEnv loads config from environment variables.
// PALLET_OTLP_ENDPOINT, PALLET_OTLP_INSECURE, PALLET_TRACE_SERVICE_NAME,
// PALLET_TRACE_SAMPLE_RATIO
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Endpoint = os.Getenv("PALLET_OTLP_ENDPOINT")
	if v := os.Getenv("PALLET_OTLP_INSECURE"); v != "" {
		cfg.Insecure = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PALLET_TRACE_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("PALLET_TRACE_SAMPLE_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider exporting to cfg.Endpoint. With no
// endpoint the global no-op provider is left in place.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (Shutdown, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		logger.Info("trace export disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultConfig().ServiceName
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("trace export enabled", "endpoint", cfg.Endpoint, "service", name, "sampleRatio", cfg.SampleRatio)
	return tp.Shutdown, nil
}
