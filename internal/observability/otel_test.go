package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/wa-intercom-relay/internal/config"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabled(insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: "wa-intercom-relay",
		SampleRatio: 1.0,
	}
}

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupTracing(context.Background(), config.OTELConfig{Enabled: false}, BuildInfo{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupTracing_InstallsProvider(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		keepGlobals(t)
		shutdown, err := SetupTracing(context.Background(), enabled(insecure), BuildInfo{Version: "v1", Env: "dev"})
		require.NoError(t, err)

		_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
		assert.True(t, ok, "insecure=%v", insecure)

		ctx, span := otel.Tracer("test").Start(context.Background(), "span")
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		span.End()
		assert.NotEmpty(t, carrier.Get("traceparent"))

		_ = shutdown(context.Background())
	}
}

func TestSetupTracing_ErrorsLeaveGlobalsIntact(t *testing.T) {
	keepGlobals(t)
	origExp, origRes := newExporter, newResource
	t.Cleanup(func() { newExporter, newResource = origExp, origRes })

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()

	newExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("boom-exporter")
	}
	_, err := SetupTracing(context.Background(), enabled(true), BuildInfo{})
	require.Error(t, err)

	newExporter = origExp
	newResource = func(context.Context, string, BuildInfo) (*resource.Resource, error) {
		return nil, errors.New("boom-resource")
	}
	_, err = SetupTracing(context.Background(), enabled(true), BuildInfo{})
	require.Error(t, err)

	assert.Equal(t, prevTP, otel.GetTracerProvider())
	assert.Equal(t, prevProp, otel.GetTextMapPropagator())
}
