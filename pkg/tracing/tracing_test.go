package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PALLET_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("PALLET_OTLP_INSECURE", "1")
	t.Setenv("PALLET_TRACE_SAMPLE_RATIO", "0.25")

	cfg := ConfigFromEnv()
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, "pallet-registry", cfg.ServiceName)
}

func TestConfigFromEnv_IgnoresBadRatio(t *testing.T) {
	t.Setenv("PALLET_TRACE_SAMPLE_RATIO", "3")
	assert.Equal(t, 1.0, ConfigFromEnv().SampleRatio)
}

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetup_InstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	cfg := DefaultConfig()
	cfg.Endpoint = "127.0.0.1:4318"
	cfg.Insecure = true
	shutdown, err := Setup(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
