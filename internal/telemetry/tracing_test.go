package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProvider(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "radar-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	rec := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(rec)

	_, span := Tracer().Start(ctx, "unit")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "unit", ended[0].Name())
	var _ sdktrace.ReadOnlySpan = ended[0]
}
