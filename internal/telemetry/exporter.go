package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ExporterConfig selects the OTLP endpoint spans are shipped to. The gRPC
// endpoint wins when both are set.
type ExporterConfig struct {
	GRPCEndpoint string
	HTTPEndpoint string
	Headers      map[string]string
}

// NewExporter builds an OTLP span exporter, or returns nil when no endpoint is
// configured.
func NewExporter(ctx context.Context, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	switch {
	case cfg.GRPCEndpoint != "":
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.GRPCEndpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp grpc exporter: %w", err)
		}
		return exp, nil
	case cfg.HTTPEndpoint != "":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.HTTPEndpoint),
			otlptracehttp.WithHeaders(cfg.Headers),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp http exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, nil
	}
}
