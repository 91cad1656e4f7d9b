// ABOUTME: Tests for turn metrics recorders and telemetry init
// ABOUTME: Covers nil-safety, instrument registration, and exporter selection

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTurnMetrics_NilSafe(t *testing.T) {
	var m *TurnMetrics

	ctx := context.Background()

	// None of these may panic on a nil receiver.
	m.RecordEvent(ctx, "slack")
	m.RecordOutcome(ctx, "slack", "acked")
	m.RecordRuntimeLatency(ctx, "slack", time.Second)
	m.RecordMemoryCommit(ctx, "ok")
}

func TestTurnMetrics_RecordsThroughSDK(t *testing.T) {
	previous := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	m, err := NewTurnMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEvent(ctx, "slack")
	m.RecordEvent(ctx, "slack")
	m.RecordOutcome(ctx, "slack", "runtime_unavailable")
	m.RecordRuntimeLatency(ctx, "slack", 1500*time.Millisecond)
	m.RecordMemoryCommit(ctx, "failed")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, instrument := range scope.Metrics {
			names[instrument.Name] = true
		}
	}

	for _, want := range []string{
		"sigil.gateway.events",
		"sigil.gateway.turns",
		"sigil.gateway.runtime.latency",
		"sigil.gateway.memory.commits",
	} {
		assert.True(t, names[want], "instrument %s not collected", want)
	}
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init("sigil-gateway", "test", Config{Exporter: "none"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	previous := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	shutdown, err := Init("sigil-gateway", "test", Config{Exporter: "stdout"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestInit_OTLPRequiresEndpoint(t *testing.T) {
	_, err := Init("sigil-gateway", "test", Config{Exporter: "otlp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init("sigil-gateway", "test", Config{Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown telemetry exporter")
}
