package mqtt

import (
	"github.com/kilianp07/gridsim/core/factory"
	"github.com/kilianp07/gridsim/core/telemetry"
)

func init() {
	_ = telemetry.RegisterSink("mqtt", func(conf map[string]any) (telemetry.Sink, error) {
		var cfg Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return NewPublisher(cfg)
	})
}
