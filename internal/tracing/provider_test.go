package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"uisync/internal/configuration"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	cfg := &configuration.TracingConfigurationProperties{Enabled: false, Endpoint: "http://localhost:4318"}

	shutdown, err := Setup(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	cfg := &configuration.TracingConfigurationProperties{Enabled: true}

	shutdown, err := Setup(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetup_InstallsProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// Non-routable address so nothing is exported.
	cfg := &configuration.TracingConfigurationProperties{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "uisync-test",
	}

	shutdown, err := Setup(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	require.NoError(t, shutdown(context.Background()))
}
