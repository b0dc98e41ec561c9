package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridsim/core/sim"
	"github.com/kilianp07/gridsim/core/telemetry"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

// TickMetrics aggregates tick results into grid-level Prometheus metrics.
type TickMetrics struct {
	ticks      prometheus.Counter
	unmet      prometheus.Counter
	energy     *prometheus.CounterVec
	flows      *prometheus.GaugeVec
	cost       prometheus.Gauge
	residual   prometheus.Gauge
	deviations prometheus.Gauge
	dispatch   *prometheus.GaugeVec
}

// NewTickMetrics registers the grid metrics on reg, the default registerer when nil.
func NewTickMetrics(reg prometheus.Registerer) (*TickMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &TickMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridsim_ticks_total",
			Help: "Simulation ticks resolved",
		}),
		unmet: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridsim_unmet_demand_ticks_total",
			Help: "Ticks where storage could not cover the deficit",
		}),
		energy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridsim_energy_kwh_total",
			Help: "Energy per balance flow",
		}, []string{"flow"}),
		flows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_balance_kw",
			Help: "Power per balance flow on the last tick",
		}, []string{"flow"}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridsim_external_grid_cost_total",
			Help: "Accumulated external grid import cost",
		}),
		residual: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridsim_balance_residual_kw",
			Help: "Energy balance closure error on the last tick",
		}),
		deviations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridsim_sensor_deviations",
			Help: "Sensor readings clamped into their range",
		}),
		dispatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridsim_telemetry_records",
			Help: "Telemetry dispatcher counters by outcome",
		}, []string{"outcome"}),
	}
	var err error
	if m.ticks, err = register(reg, m.ticks); err != nil {
		return nil, err
	}
	if m.unmet, err = register(reg, m.unmet); err != nil {
		return nil, err
	}
	if m.energy, err = register(reg, m.energy); err != nil {
		return nil, err
	}
	if m.flows, err = register(reg, m.flows); err != nil {
		return nil, err
	}
	if m.cost, err = register(reg, m.cost); err != nil {
		return nil, err
	}
	if m.residual, err = register(reg, m.residual); err != nil {
		return nil, err
	}
	if m.deviations, err = register(reg, m.deviations); err != nil {
		return nil, err
	}
	if m.dispatch, err = register(reg, m.dispatch); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records one tick.
func (m *TickMetrics) Observe(res sim.TickResult) {
	h := res.Tick.Hours()
	m.ticks.Inc()
	if res.UnmetDemand {
		m.unmet.Inc()
	}
	for flow, kw := range map[string]float64{
		"generation":  res.DeliveredKW,
		"loss":        res.LossKW,
		"consumption": res.ConsumptionKW,
		"charge":      res.ChargeKW,
		"discharge":   res.DischargeKW,
		"import":      res.ImportKW,
		"export":      res.ExportKW,
	} {
		m.flows.WithLabelValues(flow).Set(kw)
		m.energy.WithLabelValues(flow).Add(kw * h)
	}
	m.cost.Set(res.TotalExternalCost)
	m.residual.Set(res.Residual)
	m.deviations.Set(float64(res.SensorDeviations))
}

// ObserveDispatch exports the telemetry dispatcher counters.
func (m *TickMetrics) ObserveDispatch(st telemetry.DispatchStats) {
	m.dispatch.WithLabelValues("delivered").Set(float64(st.Delivered))
	m.dispatch.WithLabelValues("dropped").Set(float64(st.Dropped))
	m.dispatch.WithLabelValues("failed").Set(float64(st.Failed))
	m.dispatch.WithLabelValues("queued").Set(float64(st.Queued))
}

// StartTickCollector subscribes to the tick bus and records metrics for
// every result. stats, when set, is sampled on each tick. It stops when the
// context is canceled or the bus is closed.
func StartTickCollector(ctx context.Context, bus *eventbus.TypedBus[sim.TickResult], m *TickMetrics, stats func() telemetry.DispatchStats) {
	if bus == nil || m == nil {
		return
	}
	sub := bus.SubscribeBuffered(256)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-sub:
				if !ok {
					return
				}
				m.Observe(res)
				if stats != nil {
					m.ObserveDispatch(stats())
				}
			}
		}
	}()
}
