// Package telemetry provides the optional, pluggable adapters a host
// wires around the bus and its agents: a structured Logger
// implementation and an OpenTelemetry-backed Telemetry implementation.
//
// Neither core nor bus nor agent imports this package. They depend
// only on the Logger/Telemetry/Span interfaces declared in core.
// telemetry is the concrete adapter a host chooses to satisfy those
// interfaces with.
//
// Export transport (OTLP/gRPC, an HTTP collector) is out of this
// package's scope: OTelTelemetry records spans against the
// OpenTelemetry SDK's in-process tracer provider and keeps the last
// value of each metric in memory; shipping them to a backend is a
// concern a host attaches its own exporter to.
package telemetry
