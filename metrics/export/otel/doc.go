// Package otel exposes engine counters through OpenTelemetry observable
// instruments. The caller supplies the Meter and owns the
// MeterProvider; Close unregisters the collection callback.
package otel
