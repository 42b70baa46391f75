// File: internal/observability/tracing.go
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/xkilldash9x/steadyhand/internal/config"
)

const tracerName = "github.com/xkilldash9x/steadyhand"

// TracerProvider wraps the SDK provider together with the file it exports to.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	out      io.Closer
}

// NewTracerProvider installs a global tracer provider exporting spans as JSON
// lines to cfg.File (stdout when empty). A disabled config yields a nil
// provider and leaves the global no-op tracer in place.
func NewTracerProvider(cfg config.TracingConfig, serviceName, version string) (*TracerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var w io.Writer = os.Stdout
	var closer io.Closer
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider, out: closer}, nil
}

// Shutdown flushes pending spans. It is safe on a nil provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	err := tp.provider.Shutdown(ctx)
	if tp.out != nil {
		if cerr := tp.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span with the given name.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, spanName, trace.WithAttributes(attrs...))
}
