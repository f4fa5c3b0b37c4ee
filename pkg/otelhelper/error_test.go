package otelhelper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(context.Background(), provider.Tracer("test"), "instance.execute",
		attribute.String(InstanceIDKey, "inst-1"))
	SetError(span, fmt.Errorf("failed to run step: %w", errors.New("boom")), attribute.String(StepIDKey, "step-1"))
	SetError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "failed to run step: boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 2)

	event := spans[0].Events()[1]
	assert.Equal(t, "error_occurred", event.Name)
	assert.Contains(t, event.Attributes, attribute.String(StepIDKey, "step-1"))
	assert.Contains(t, event.Attributes, attribute.String(ErrorTypeKey, "*errors.errorString"))
}

func TestNoopTracer(t *testing.T) {
	_, span := StartSpan(context.Background(), NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
