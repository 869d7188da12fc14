// Package otel exports the engine metrics through OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection cycle, so the exporter
// never owns state of its own.
//
// The caller owns the MeterProvider and supplies the Meter.
package otel
