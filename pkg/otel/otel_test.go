package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"inventory/pkg/logger"
)

func TestGetTraceIDWithoutSpan(t *testing.T) {
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestAddSpanRecords(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := AddSpan(context.Background(), "sqlstore.Insert", attribute.Int64("item.id", 4))
	assert.Len(t, GetTraceID(ctx), 32)
	EndSpan(span, errors.New("disk full"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "sqlstore.Insert", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.Int64("item.id", 4))
}

func TestInitTracingWithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, shutdown, err := InitTracing(logger.Nop(), Config{ServiceName: "inventory", Probability: 1})
	require.NoError(t, err)
	require.NotNil(t, tp)

	ctx, span := AddSpan(context.Background(), "probe")
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	require.NoError(t, shutdown(context.Background()))
}
