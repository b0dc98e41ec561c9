package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/device"
	"github.com/kilianp07/gridsim/core/logger"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/scenario"
	"github.com/kilianp07/gridsim/core/sensors"
	"github.com/kilianp07/gridsim/core/telemetry"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

// Options controls the run loop.
type Options struct {
	RunID string
	Start time.Time
	Tick  time.Duration
	// Ticks is the number of ticks Run performs. Zero runs until cancelled.
	Ticks int64
	// RealtimeScale paces the loop at Tick/RealtimeScale of wall time per
	// tick. Zero runs as fast as possible.
	RealtimeScale     float64
	PublishEveryTicks int64
	LogEveryTicks     int64
}

// Grid is the set of devices taking part in the simulation. Generators
// feed their inverter, then every substation and transformer in order;
// batteries, consumers and the external grid sit on the distribution bus.
type Grid struct {
	Batteries  []*device.Battery
	Generators []*device.Generator
	Consumers  []*device.Consumer
	Components []*device.Component
}

// Deps are the collaborators of the engine.
type Deps struct {
	Weather   *sensors.Weather
	Collector *sensors.Collector
	Allocator Allocator
	Sink      telemetry.Sink
	Bus       *eventbus.TypedBus[TickResult]
	Scenario  *scenario.Scenario
	Log       logger.Logger
}

// Engine advances the clock and resolves the energy balance once per tick.
// It is not safe for concurrent use; observers read tick results from the bus.
type Engine struct {
	opts  Options
	clock *Clock
	grid  Grid
	deps  Deps

	external  *device.Generator
	plants    []*device.Generator
	inverters map[string]*device.Component
	series    []*device.Component
	devices   map[string]device.Device

	totalExternalCost float64
	publishErrors     uint64
}

// NewEngine checks the topology and returns an engine positioned at opts.Start.
func NewEngine(opts Options, grid Grid, deps Deps) (*Engine, error) {
	if opts.Tick <= 0 {
		return nil, errors.New("tick duration must be positive")
	}
	if opts.PublishEveryTicks <= 0 {
		opts.PublishEveryTicks = 1
	}
	if deps.Weather == nil || deps.Collector == nil || deps.Log == nil {
		return nil, errors.New("weather, collector and logger are required")
	}
	if deps.Allocator == nil {
		deps.Allocator = Proportional{}
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.NopSink{}
	}
	e := &Engine{
		opts:      opts,
		clock:     NewClock(opts.Start, opts.Tick),
		grid:      grid,
		deps:      deps,
		inverters: make(map[string]*device.Component),
		devices:   make(map[string]device.Device),
	}
	add := func(d device.Device) error {
		if _, dup := e.devices[d.ID()]; dup {
			return fmt.Errorf("duplicate device id %q", d.ID())
		}
		e.devices[d.ID()] = d
		return nil
	}
	var errs []error
	for _, b := range grid.Batteries {
		errs = append(errs, add(b))
	}
	for _, c := range grid.Consumers {
		errs = append(errs, add(c))
	}
	for _, c := range grid.Components {
		errs = append(errs, add(c))
		if c.ComponentType() == model.ComponentInverter {
			e.inverters[c.ID()] = c
		} else {
			e.series = append(e.series, c)
		}
	}
	for _, g := range grid.Generators {
		errs = append(errs, add(g))
		if g.IsExternal() {
			if e.external != nil {
				errs = append(errs, fmt.Errorf("more than one external grid: %s and %s", e.external.ID(), g.ID()))
			}
			e.external = g
			continue
		}
		if inv := g.Inverter(); inv != "" {
			if _, ok := e.inverters[inv]; !ok {
				errs = append(errs, fmt.Errorf("generator %s: unknown inverter %q", g.ID(), inv))
			}
		}
		e.plants = append(e.plants, g)
	}
	if e.external == nil {
		errs = append(errs, errors.New("an external_grid generator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return e, nil
}

// Now returns the simulated time of the latest tick.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Device returns the device with the given id.
func (e *Engine) Device(id string) (device.Device, bool) {
	d, ok := e.devices[id]
	return d, ok
}

// DeviceIDs returns every device id in sorted order.
func (e *Engine) DeviceIDs() []string {
	ids := make([]string, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run steps the engine until opts.Ticks ticks ran or ctx is cancelled.
// Cancellation takes effect between ticks.
func (e *Engine) Run(ctx context.Context) error {
	var pace time.Duration
	if e.opts.RealtimeScale > 0 {
		pace = time.Duration(float64(e.opts.Tick) / e.opts.RealtimeScale)
	}
	e.deps.Log.Infow("simulation started", map[string]any{
		"run_id": e.opts.RunID,
		"start":  model.FormatSimTime(e.clock.Now()),
		"tick":   e.opts.Tick.String(),
		"ticks":  e.opts.Ticks,
		"policy": e.deps.Allocator.Name(),
	})
	for n := int64(0); e.opts.Ticks == 0 || n < e.opts.Ticks; n++ {
		if ctx.Err() != nil {
			break
		}
		res, err := e.Step(ctx)
		if err != nil {
			return err
		}
		if e.opts.LogEveryTicks > 0 && res.Index%e.opts.LogEveryTicks == 0 {
			e.deps.Log.Infow("tick", map[string]any{
				"tick":           res.Index,
				"simulated_time": res.Time,
				"generation_kw":  round3(res.DeliveredKW),
				"consumption_kw": round3(res.ConsumptionKW),
				"import_kw":      round3(res.ImportKW),
				"export_kw":      round3(res.ExportKW),
			})
		}
		if pace > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pace):
			}
		}
	}
	e.deps.Log.Infow("simulation stopped", map[string]any{
		"run_id":              e.opts.RunID,
		"simulated_time":      model.FormatSimTime(e.clock.Now()),
		"total_external_cost": round3(e.totalExternalCost),
		"publish_errors":      e.publishErrors,
	})
	return nil
}

// Step runs one tick in a fixed order: advance the clock, apply scheduled
// events, generate, compute demand, resolve the balance, apply component
// losses, accrue storage cost and publish. A cancelled ctx aborts the tick
// before any device state changes.
func (e *Engine) Step(ctx context.Context) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}
	prev := e.clock.Now()
	tick := e.clock.Advance()
	d := tick.Hours()

	e.applyEvents(prev, tick)
	cond := e.deps.Weather.Advance(tick.Time)
	for _, b := range e.grid.Batteries {
		b.SetAmbient(cond.AmbientC)
	}
	for _, dev := range e.devices {
		dev.Update(tick)
	}

	res := TickResult{Tick: tick, Index: tick.Index, Time: model.FormatSimTime(tick.Time), Currency: e.external.Costs().Currency}

	raw := make(map[string]float64, len(e.plants))
	for _, g := range e.plants {
		p, err := g.Generate(cond, tick)
		if err != nil {
			return res, err
		}
		raw[g.ID()] = p
		res.GenerationKW += p
	}
	for _, c := range e.grid.Consumers {
		p, err := c.Demand(tick)
		if err != nil {
			return res, err
		}
		res.ConsumptionKW += p
	}

	res.DeliveredKW = e.deliveredKW(raw)
	res.LossKW = res.GenerationKW - res.DeliveredKW

	if err := e.resolve(&res, tick); err != nil {
		return res, err
	}
	if err := e.applyLosses(raw, tick); err != nil {
		return res, err
	}
	for _, b := range e.grid.Batteries {
		if _, err := b.StorageCost(d, tick.Time); err != nil {
			return res, err
		}
	}

	q, err := e.external.Exchange(res.ImportKW-res.ExportKW, tick)
	if err != nil {
		return res, err
	}
	res.ExternalCost = q.Cost
	e.totalExternalCost += q.Cost
	res.TotalExternalCost = e.totalExternalCost
	res.Residual = res.DeliveredKW + res.DischargeKW - res.ChargeKW - res.ConsumptionKW - (res.ExportKW - res.ImportKW)

	records, err := e.collect(tick, cond)
	if err != nil {
		return res, err
	}
	res.SensorDeviations = e.deps.Collector.Deviations()
	res.Records = records
	if tick.Index%e.opts.PublishEveryTicks == 0 {
		e.publish(ctx, tick, &res, q)
		res.Published = true
	}
	res.PublishErrors = e.publishErrors
	if e.deps.Bus != nil {
		e.deps.Bus.Publish(res)
	}
	return res, nil
}

// deliveredKW is the generation reaching the distribution bus.
func (e *Engine) deliveredKW(raw map[string]float64) float64 {
	var bus float64
	for _, g := range e.plants {
		f := 1.0
		if inv, ok := e.inverters[g.Inverter()]; ok {
			f = inv.Factor()
		}
		bus += raw[g.ID()] * f
	}
	for _, c := range e.series {
		bus *= c.Factor()
	}
	return bus
}

// resolve routes the surplus to storage or the deficit from storage and
// leaves the remainder to the external grid.
func (e *Engine) resolve(res *TickResult, tick model.Tick) error {
	d := tick.Hours()
	surplus := res.DeliveredKW - res.ConsumptionKW
	cands := make([]Candidate, len(e.grid.Batteries))

	switch {
	case surplus > 0:
		for i, b := range e.grid.Batteries {
			cands[i] = Candidate{ID: b.ID(), Priority: b.Priority(), LimitKWh: b.ChargeLimitKWh(d)}
		}
		shares := e.deps.Allocator.Allocate(surplus*d, cands)
		for i, b := range e.grid.Batteries {
			if shares[i] <= 0 {
				continue
			}
			stored, err := b.Charge(shares[i]/d, d, tick.Time)
			if err != nil {
				return err
			}
			res.ChargeKW += stored / b.ChargeEfficiency() / d
		}
		res.ExportKW = surplus - res.ChargeKW
	case surplus < 0:
		deficit := -surplus
		for i, b := range e.grid.Batteries {
			cands[i] = Candidate{ID: b.ID(), Priority: b.Priority(), LimitKWh: b.DischargeLimitKWh(d)}
		}
		shares := e.deps.Allocator.Allocate(deficit*d, cands)
		for i, b := range e.grid.Batteries {
			if shares[i] <= 0 {
				continue
			}
			removed, err := b.Discharge(shares[i]/d, d, tick.Time)
			if err != nil {
				return err
			}
			res.DischargeKW += removed * b.DischargeEfficiency() / d
		}
		res.ImportKW = deficit - res.DischargeKW
	}
	res.ExportKW = settle(res.ExportKW)
	res.ImportKW = settle(res.ImportKW)
	res.UnabsorbedSurplus = res.ExportKW > 0
	res.UnmetDemand = res.ImportKW > 0
	return nil
}

// settle drops floating point dust left after allocation.
func settle(kw float64) float64 {
	if kw < 1e-9 {
		return 0
	}
	return kw
}

// applyLosses pushes the tick's generation through the components so they
// record throughput and accrue their cost.
func (e *Engine) applyLosses(raw map[string]float64, tick model.Tick) error {
	perInverter := make(map[string]float64, len(e.inverters))
	var bus float64
	for _, g := range e.plants {
		if _, ok := e.inverters[g.Inverter()]; ok {
			perInverter[g.Inverter()] += raw[g.ID()]
			continue
		}
		bus += raw[g.ID()]
	}
	ids := make([]string, 0, len(perInverter))
	for id := range perInverter {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out, err := e.inverters[id].Apply(perInverter[id], tick)
		if err != nil {
			return err
		}
		bus += out
	}
	for _, c := range e.series {
		out, err := c.Apply(bus, tick)
		if err != nil {
			return err
		}
		bus = out
	}
	return nil
}

func (e *Engine) applyEvents(prev time.Time, tick model.Tick) {
	for _, ev := range e.deps.Scenario.Due(prev, tick.Time, tick.Index) {
		fields := map[string]any{"event": ev.Name, "action": string(ev.Action), "device": ev.Device, "tick": tick.Index}
		dev, ok := e.devices[ev.Device]
		if !ok {
			e.deps.Log.Warnw("scenario event for unknown device", fields)
			continue
		}
		switch ev.Action {
		case scenario.ActionConnect:
			dev.SetConnected(true)
		case scenario.ActionDisconnect:
			dev.SetConnected(false)
		case scenario.ActionFault, scenario.ActionReset:
			b, isBattery := dev.(*device.Battery)
			if !isBattery {
				e.deps.Log.Warnw("scenario fault and reset only apply to batteries", fields)
				continue
			}
			if ev.Action == scenario.ActionFault {
				b.Fault()
			} else {
				b.Reset()
			}
		}
		e.deps.Log.Infow("scenario event applied", fields)
	}
}

// collect builds the records of every device, sensor readings included.
func (e *Engine) collect(tick model.Tick, cond sensors.Conditions) ([]model.Record, error) {
	records := make([]model.Record, 0, len(e.devices))
	for _, id := range e.DeviceIDs() {
		dev := e.devices[id]
		in := sensors.Input{
			DeviceID:    id,
			Kind:        dev.Kind(),
			Type:        dev.Type(),
			OperatingKW: dev.OperatingKW(),
			RatedKW:     dev.RatedKW(),
		}
		if b, ok := dev.(*device.Battery); ok {
			temp := b.TemperatureC()
			in.TemperatureC = &temp
		}
		snap, err := e.deps.Collector.Collect(in, cond)
		if err != nil {
			return nil, fmt.Errorf("tick %d: %w", tick.Index, err)
		}
		if !dev.Connected() {
			// smoothing restarts from fresh readings on reconnect
			e.deps.Collector.Forget(id)
		}
		rec := model.NewRecord(e.opts.RunID, tick, dev.Snapshot(), dev.Costs())
		rec.Sensors = snap.Fields
		rec.SensorLabels = snap.Labels
		records = append(records, rec)
	}
	return records, nil
}

func (e *Engine) publish(ctx context.Context, tick model.Tick, res *TickResult, q cost.Quote) {
	send := func(topic string, rec model.Record) {
		if err := e.deps.Sink.Publish(ctx, topic, rec); err != nil {
			e.publishErrors++
			e.deps.Log.Debugf("publish %s: %v", topic, err)
		}
	}
	for _, rec := range res.Records {
		send(model.StateTopic(rec.Kind, rec.DeviceID), rec)
	}

	balance := model.NewRecord(e.opts.RunID, tick, model.State{
		DeviceID:  "balance",
		Kind:      model.KindGrid,
		Type:      "balance",
		Connected: true,
		Values:    res.BalanceValues(),
	}, e.external.Costs())
	send(model.BalanceTopic, balance)

	if res.ImportKW > 0 {
		costRec := model.NewRecord(e.opts.RunID, tick, model.State{
			DeviceID:  e.external.ID(),
			Kind:      model.KindGrid,
			Type:      string(model.GenerationExternalGrid),
			Connected: true,
			Values: map[string]float64{
				"power_kw":                 res.ImportKW,
				"energy_kwh":               q.EnergyKWh,
				"current_operation_cost":   q.Cost,
				"total_external_grid_cost": e.totalExternalCost,
				"base_cost_per_kwh":        q.BaseRate,
				"time_multiplier":          q.TimeMultiplier,
				"seasonal_multiplier":      q.SeasonalMultiplier,
				"final_cost_per_kwh":       q.FinalRate,
			},
		}, e.external.Costs())
		send(model.ExternalGridCostTopic, costRec)
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
