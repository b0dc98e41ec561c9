// Package infra contains technical adapters: the telemetry sinks (MQTT,
// InfluxDB, Prometheus and the local record stores), the zerolog logger and
// Sentry error monitoring. Sinks implement core/telemetry.Sink and register
// themselves by type name.
package infra
