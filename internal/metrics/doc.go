// Package metrics provides OpenTelemetry instrumentation for turn
// processing. Recorders are nil-safe so the gateway runs identically
// with telemetry disabled.
package metrics
