package cmd

import (
	"context"

	"github.com/dukex/custodian/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

//nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool) (trace.Tracer, error) {
	if !enabled {
		return otelhelper.NoopTracer(), nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}
