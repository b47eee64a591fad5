// Package tracing wires OpenTelemetry into wrappers: pass the returned
// tracer to isowrap.WithTracer and every transaction becomes a span
// carrying the wrapper name, method and transaction id.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fluxorio/isowrap"

// Provider bundles an SDK tracer provider with its shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewStdoutProvider builds a tracer provider exporting pretty-printed
// spans to w. Intended for development and tests; production callers
// should bring their own provider and use Tracer.
func NewStdoutProvider(w io.Writer) (*Provider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("stdouttrace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	return &Provider{tp: tp}, nil
}

// Tracer returns the tracer to hand to isowrap.WithTracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(tracerName)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown() error {
	return p.tp.Shutdown(context.Background())
}

// Tracer derives an isowrap tracer from any OpenTelemetry provider.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(tracerName)
}
