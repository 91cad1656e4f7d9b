// ABOUTME: OpenTelemetry instruments for turn processing
// ABOUTME: Counts events, terminal outcomes, runtime latency, and memory commits

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TurnMetrics tracks the gateway's externally observable behavior. A
// nil *TurnMetrics is valid and records nothing, so callers never need
// to guard for disabled telemetry.
type TurnMetrics struct {
	// events counts inbound deliveries by provider, before any outcome
	// is known
	events metric.Int64Counter

	// outcomes counts terminal pipeline states by provider
	outcomes metric.Int64Counter

	// runtimeLatency tracks the runtime query duration in seconds
	runtimeLatency metric.Float64Histogram

	// memoryCommits counts long-term memory commit attempts by result
	memoryCommits metric.Int64Counter
}

// NewTurnMetrics creates the gateway's instruments on the global meter.
func NewTurnMetrics() (*TurnMetrics, error) {
	meter := otel.Meter("sigil/gateway")

	events, err := meter.Int64Counter(
		"sigil.gateway.events",
		metric.WithDescription("Inbound event deliveries by provider"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"sigil.gateway.turns",
		metric.WithDescription("Terminal turn outcomes by provider and outcome"),
	)
	if err != nil {
		return nil, err
	}

	runtimeLatency, err := meter.Float64Histogram(
		"sigil.gateway.runtime.latency",
		metric.WithDescription("Agent runtime query latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	memoryCommits, err := meter.Int64Counter(
		"sigil.gateway.memory.commits",
		metric.WithDescription("Long-term memory commit attempts by result"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		events:         events,
		outcomes:       outcomes,
		runtimeLatency: runtimeLatency,
		memoryCommits:  memoryCommits,
	}, nil
}

// RecordEvent counts one inbound delivery for a provider.
func (m *TurnMetrics) RecordEvent(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
		),
	)
}

// RecordOutcome counts one terminal pipeline state for a provider.
func (m *TurnMetrics) RecordOutcome(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRuntimeLatency tracks how long one runtime query took.
func (m *TurnMetrics) RecordRuntimeLatency(ctx context.Context, provider string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runtimeLatency.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
		),
	)
}

// RecordMemoryCommit counts one commit attempt with its result
// ("ok" or "failed").
func (m *TurnMetrics) RecordMemoryCommit(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.memoryCommits.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("result", result),
		),
	)
}
