package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/arbitgo/triarb/internal/supervisor"

// InitTracer installs a process-wide TracerProvider that writes spans as
// newline-delimited JSON to stdout. It returns a shutdown func that flushes
// and detaches the provider; callers should defer it (or invoke it during
// their own shutdown sequence) so spans from the final evaluate/execute
// cycle are not lost.
func InitTracer(instanceID string, logger *slog.Logger) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("monitor: new trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	logger.Info("tracing initialized", "instance_id", instanceID, "exporter", "stdout")

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("monitor: tracer shutdown: %w", err)
		}
		return nil
	}, nil
}

// Tracer returns the named tracer off the process-wide TracerProvider. It is
// safe to call before InitTracer; the SDK falls back to a no-op tracer until
// a provider is installed.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
