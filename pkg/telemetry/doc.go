// Package telemetry provides the weft driver's observability stack:
// structured logging (zerolog), distributed tracing (OpenTelemetry), and
// Prometheus metrics for the runner service.
//
// The CLI runs with console logging on stderr and tracing disabled unless
// configured; the runner service typically enables JSON logs, the OTLP
// exporter, and the metrics endpoint.
package telemetry
