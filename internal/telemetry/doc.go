// Package telemetry wires docrouter's distributed tracing.
//
// It owns the global OpenTelemetry tracer provider and its OTLP export.
// Metrics are deliberately out of scope here: docrouter exposes them
// through the Prometheus registry behind GET /metrics. Tracing failures
// degrade to a no-op tracer, never a crashed service.
package telemetry
