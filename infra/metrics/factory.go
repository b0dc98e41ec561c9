package metrics

import (
	"github.com/kilianp07/gridsim/core/factory"
	"github.com/kilianp07/gridsim/core/telemetry"
)

// init registers the metrics-backed telemetry sinks.
func init() {
	_ = telemetry.RegisterSink("prometheus", func(map[string]any) (telemetry.Sink, error) {
		return NewPromSink()
	})

	_ = telemetry.RegisterSink("influx", func(conf map[string]any) (telemetry.Sink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
