// Package telemetry defines the sink the simulation publishes per-tick
// device records to, a registry building sinks from configuration and an
// asynchronous dispatcher that keeps slow sinks off the tick path.
package telemetry
