package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridsim/core/model"
)

// powerField is the state value exported as the device power gauge.
var powerField = map[model.DeviceKind]string{
	model.KindBattery:       "power_kw",
	model.KindGeneration:    "current_output_kw",
	model.KindConsumer:      "current_demand_kw",
	model.KindGridComponent: "power_out_kw",
}

// PromSink exposes the latest device records as Prometheus gauges.
type PromSink struct {
	records *prometheus.CounterVec
	power   *prometheus.GaugeVec
	soc     *prometheus.GaugeVec
	soh     *prometheus.GaugeVec
	temp    *prometheus.GaugeVec
	cost    *prometheus.GaugeVec
}

// NewPromSink registers the device metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridsim_records_total",
			Help: "Telemetry records received per device kind",
		}, []string{"kind"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_device_power_kw",
			Help: "Latest device power in kW",
		}, []string{"device_id", "kind"}),
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_battery_soc_percent",
			Help: "Battery state of charge",
		}, []string{"device_id"}),
		soh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_battery_soh_percent",
			Help: "Battery state of health",
		}, []string{"device_id"}),
		temp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_battery_temperature_celsius",
			Help: "Modelled battery temperature",
		}, []string{"device_id"}),
		cost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_device_cost_total",
			Help: "Accumulated device cost in the tariff currency",
		}, []string{"device_id", "kind", "currency"}),
	}
	var err error
	if s.records, err = register(reg, s.records); err != nil {
		return nil, err
	}
	for _, g := range []**prometheus.GaugeVec{&s.power, &s.soc, &s.soh, &s.temp, &s.cost} {
		if *g, err = register(reg, *g); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Publish updates the gauges of the record's device. Grid-level records
// only count.
func (s *PromSink) Publish(_ context.Context, _ string, rec model.Record) error {
	kind := rec.Kind.String()
	s.records.WithLabelValues(kind).Inc()
	field, ok := powerField[rec.Kind]
	if !ok {
		return nil
	}
	s.power.WithLabelValues(rec.DeviceID, kind).Set(rec.State[field])
	s.cost.WithLabelValues(rec.DeviceID, kind, rec.Cost.Currency).Set(rec.Cost.Total())
	if rec.Kind == model.KindBattery {
		s.soc.WithLabelValues(rec.DeviceID).Set(rec.State["soc_percent"])
		s.soh.WithLabelValues(rec.DeviceID).Set(rec.State["soh_percent"])
		s.temp.WithLabelValues(rec.DeviceID).Set(rec.State["temperature_c"])
	}
	return nil
}
