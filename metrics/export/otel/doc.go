// Package otel provides OpenTelemetry metric exporter bindings for dirgate
// counters.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// dirgate metric. A single callback reads
// [dirgate.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
