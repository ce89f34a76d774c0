package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "test", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := Tracer("crawler").Start(context.Background(), "crawl.run")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "crawl.run", ended[0].Name())
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestNewExporterWithoutEndpoint(t *testing.T) {
	t.Parallel()

	exp, err := NewExporter(context.Background(), ExporterConfig{})
	require.NoError(t, err)
	require.Nil(t, exp)
}

func TestNewExporterHTTP(t *testing.T) {
	t.Parallel()

	exp, err := NewExporter(context.Background(), ExporterConfig{HTTPEndpoint: "http://127.0.0.1:4318/v1/traces"})
	require.NoError(t, err)
	require.NotNil(t, exp)
	require.NoError(t, exp.Shutdown(context.Background()))
}
