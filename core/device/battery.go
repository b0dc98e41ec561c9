package device

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
)

// BatteryConfig describes a battery pack.
type BatteryConfig struct {
	ID                  string  `json:"id"`
	Role                string  `json:"role"`
	CapacityKWh         float64 `json:"capacity_kwh"`
	InitialSoC          float64 `json:"initial_soc"`
	RatedVoltage        float64 `json:"rated_voltage"`
	RatedPowerKW        float64 `json:"rated_power_kw"`
	MaxChargeKW         float64 `json:"max_charge_kw"`
	MaxDischargeKW      float64 `json:"max_discharge_kw"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	InternalResistance  float64 `json:"internal_resistance_ohm"`
	MaxTemperatureC     float64 `json:"max_temperature_c"`
	MinSoH              float64 `json:"min_soh"`
	// ThermalCPerKWh is the temperature rise per kWh of resistive heat.
	ThermalCPerKWh float64 `json:"thermal_c_per_kwh"`
	// ThermalTauH is the time constant of relaxation toward ambient.
	ThermalTauH float64 `json:"thermal_tau_h"`
	// Priority orders batteries under the priority allocator, lowest first.
	Priority int `json:"priority"`
	// Site names the generator a plant battery is co-located with.
	Site string `json:"site,omitempty"`
}

// Validate reports configuration errors.
func (c BatteryConfig) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("battery id is required"))
	}
	if _, err := model.ParseBatteryRole(c.Role); err != nil {
		errs = append(errs, err)
	}
	if c.CapacityKWh <= 0 {
		errs = append(errs, fmt.Errorf("battery %s: capacity_kwh must be positive", c.ID))
	}
	if c.InitialSoC < 0 || c.InitialSoC > 100 {
		errs = append(errs, fmt.Errorf("battery %s: initial_soc must be within [0,100]", c.ID))
	}
	if c.RatedVoltage <= 0 {
		errs = append(errs, fmt.Errorf("battery %s: rated_voltage must be positive", c.ID))
	}
	if c.RatedPowerKW <= 0 {
		errs = append(errs, fmt.Errorf("battery %s: rated_power_kw must be positive", c.ID))
	}
	if c.MaxChargeKW < 0 || c.MaxDischargeKW < 0 {
		errs = append(errs, fmt.Errorf("battery %s: power limits must not be negative", c.ID))
	}
	if c.ChargeEfficiency <= 0 || c.ChargeEfficiency > 1 {
		errs = append(errs, fmt.Errorf("battery %s: charge_efficiency must be within (0,1]", c.ID))
	}
	if c.DischargeEfficiency <= 0 || c.DischargeEfficiency > 1 {
		errs = append(errs, fmt.Errorf("battery %s: discharge_efficiency must be within (0,1]", c.ID))
	}
	if c.InternalResistance < 0 || c.MinSoH < 0 || c.MinSoH >= 100 {
		errs = append(errs, fmt.Errorf("battery %s: invalid resistance or min_soh", c.ID))
	}
	return errors.Join(errs...)
}

// Battery is an energy store with efficiency, wear and a thermal model.
// Power is positive when charging.
type Battery struct {
	base
	cfg  BatteryConfig
	role model.BatteryRole
	wear WearPolicy

	remaining     float64
	soh           float64
	mode          model.BatteryMode
	voltage       float64
	current       float64
	powerKW       float64
	temperature   float64
	ambient       float64
	throughput    float64
	dischargedKWh float64
}

// NewBattery validates cfg and returns a battery at its initial SoC.
func NewBattery(cfg BatteryConfig, calc *cost.Calculator, wear WearPolicy) (*Battery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	role, _ := model.ParseBatteryRole(cfg.Role)
	if cfg.MaxChargeKW == 0 {
		cfg.MaxChargeKW = cfg.RatedPowerKW
	}
	if cfg.MaxDischargeKW == 0 {
		cfg.MaxDischargeKW = cfg.RatedPowerKW
	}
	if cfg.MaxTemperatureC == 0 {
		cfg.MaxTemperatureC = 60
	}
	if cfg.ThermalCPerKWh == 0 {
		cfg.ThermalCPerKWh = 2
	}
	if cfg.ThermalTauH <= 0 {
		cfg.ThermalTauH = 1
	}
	if wear == nil {
		wear = NoWear{}
	}
	return &Battery{
		base:        newBase(cfg.ID, model.KindBattery, string(role), calc),
		cfg:         cfg,
		role:        role,
		wear:        wear,
		remaining:   cfg.CapacityKWh * cfg.InitialSoC / 100,
		soh:         100,
		mode:        model.ModeIdle,
		voltage:     cfg.RatedVoltage,
		temperature: 25,
		ambient:     25,
	}, nil
}

func (b *Battery) Role() model.BatteryRole       { return b.role }
func (b *Battery) Priority() int                 { return b.cfg.Priority }
func (b *Battery) Mode() model.BatteryMode       { return b.mode }
func (b *Battery) CapacityKWh() float64          { return b.cfg.CapacityKWh }
func (b *Battery) RemainingKWh() float64         { return b.remaining }
func (b *Battery) SoH() float64                  { return b.soh }
func (b *Battery) TemperatureC() float64         { return b.temperature }
func (b *Battery) ChargeEfficiency() float64     { return b.cfg.ChargeEfficiency }
func (b *Battery) DischargeEfficiency() float64  { return b.cfg.DischargeEfficiency }
func (b *Battery) RatedKW() float64              { return b.cfg.RatedPowerKW }
func (b *Battery) OperatingKW() float64          { return math.Abs(b.powerKW) }
func (b *Battery) SetAmbient(c float64)          { b.ambient = c }
func (b *Battery) EquivalentFullCycles() float64 { return b.dischargedKWh / b.cfg.CapacityKWh }

// SoC returns the state of charge in percent.
func (b *Battery) SoC() float64 { return 100 * b.remaining / b.cfg.CapacityKWh }

func (b *Battery) available() bool { return b.connected && b.mode != model.ModeFault }

// Update starts a tick: the battery goes idle and relaxes toward ambient.
func (b *Battery) Update(tick model.Tick) {
	b.begin(tick)
	b.powerKW, b.current = 0, 0
	b.voltage = b.cfg.RatedVoltage
	b.temperature += (b.ambient - b.temperature) * (1 - math.Exp(-tick.Hours()/b.cfg.ThermalTauH))
	if b.mode != model.ModeFault {
		b.mode = model.ModeIdle
	}
}

// ChargeLimitKWh is the grid-side energy the battery can absorb over durationH.
func (b *Battery) ChargeLimitKWh(durationH float64) float64 {
	if !b.available() || durationH <= 0 {
		return 0
	}
	headroom := (b.cfg.CapacityKWh - b.remaining) / b.cfg.ChargeEfficiency
	return math.Max(0, math.Min(b.cfg.MaxChargeKW*durationH, headroom))
}

// DischargeLimitKWh is the energy the battery can deliver over durationH.
func (b *Battery) DischargeLimitKWh(durationH float64) float64 {
	if !b.available() || durationH <= 0 {
		return 0
	}
	return math.Max(0, math.Min(b.cfg.MaxDischargeKW*durationH, b.remaining*b.cfg.DischargeEfficiency))
}

// Charge draws powerKW from the grid for durationH and returns the energy
// stored. The stored amount is clamped to the free headroom; a full battery
// stores nothing and stays idle.
func (b *Battery) Charge(powerKW, durationH float64, at time.Time) (float64, error) {
	if !b.available() || powerKW <= 0 || durationH <= 0 {
		return 0, nil
	}
	p := math.Min(powerKW, b.cfg.MaxChargeKW)
	stored := math.Min(p*durationH*b.cfg.ChargeEfficiency, b.cfg.CapacityKWh-b.remaining)
	if stored <= 0 {
		b.mode = model.ModeIdle
		return 0, nil
	}
	b.remaining = math.Min(b.cfg.CapacityKWh, b.remaining+stored)
	b.mode = model.ModeCharging
	b.operate(stored/b.cfg.ChargeEfficiency/durationH, durationH, true)
	b.degrade(stored)
	if _, err := b.acc.AddCharging(cost.OpBatteryCharging, stored, at); err != nil {
		return stored, fmt.Errorf("battery %s: %w", b.id, err)
	}
	return stored, nil
}

// Discharge delivers powerKW for durationH and returns the energy removed
// from storage, which is clamped to what remains. An empty battery returns
// zero and goes idle.
func (b *Battery) Discharge(powerKW, durationH float64, at time.Time) (float64, error) {
	if !b.available() || powerKW <= 0 || durationH <= 0 {
		return 0, nil
	}
	if b.remaining <= 0 {
		b.remaining = 0
		b.mode = model.ModeIdle
		return 0, nil
	}
	p := math.Min(powerKW, b.cfg.MaxDischargeKW)
	removed := math.Min(p*durationH/b.cfg.DischargeEfficiency, b.remaining)
	b.remaining = math.Max(0, b.remaining-removed)
	b.dischargedKWh += removed
	b.mode = model.ModeDischarging
	delivered := removed * b.cfg.DischargeEfficiency
	b.operate(-delivered/durationH, durationH, false)
	b.degrade(removed)
	if _, err := b.acc.AddDischarging(cost.OpBatteryDischarging, delivered, at); err != nil {
		return removed, fmt.Errorf("battery %s: %w", b.id, err)
	}
	return removed, nil
}

// Idle puts a non-faulted battery at rest.
func (b *Battery) Idle() {
	if b.mode != model.ModeFault {
		b.mode = model.ModeIdle
		b.powerKW, b.current = 0, 0
	}
}

// StorageCost accrues the holding cost of the stored energy for durationH.
func (b *Battery) StorageCost(durationH float64, at time.Time) (float64, error) {
	if durationH <= 0 || b.remaining <= 0 {
		return 0, nil
	}
	q, err := b.acc.AddStorage(cost.OpBatteryStorage, b.remaining*durationH, at)
	if err != nil {
		return 0, fmt.Errorf("battery %s: %w", b.id, err)
	}
	return q.Cost, nil
}

// Fault forces the battery into the terminal fault mode.
func (b *Battery) Fault() {
	b.mode = model.ModeFault
	b.powerKW, b.current = 0, 0
}

// Reset clears a fault. SoH is kept; temperature returns to ambient.
func (b *Battery) Reset() {
	if b.mode == model.ModeFault {
		b.mode = model.ModeIdle
		b.temperature = b.ambient
	}
}

func (b *Battery) operate(powerKW, durationH float64, charging bool) {
	b.powerKW = powerKW
	b.current = math.Abs(powerKW) * 1000 / b.cfg.RatedVoltage
	drop := b.current * b.cfg.InternalResistance
	if charging {
		b.voltage = b.cfg.RatedVoltage + drop
	} else {
		b.voltage = math.Max(0, b.cfg.RatedVoltage-drop)
	}
	heatKWh := b.current * b.current * b.cfg.InternalResistance / 1000 * durationH
	b.temperature += heatKWh * b.cfg.ThermalCPerKWh
	if b.temperature > b.cfg.MaxTemperatureC {
		b.mode = model.ModeFault
	}
}

func (b *Battery) degrade(kwh float64) {
	b.throughput += kwh
	b.soh = math.Max(0, b.soh-b.wear.Wear(kwh, b.cfg.CapacityKWh))
	if b.cfg.MinSoH > 0 && b.soh <= b.cfg.MinSoH {
		b.mode = model.ModeFault
	}
}

// Snapshot returns the electrical state.
func (b *Battery) Snapshot() model.State {
	return b.state(string(b.mode), map[string]float64{
		"soc_percent":            b.SoC(),
		"soh_percent":            b.soh,
		"remaining_capacity_kwh": b.remaining,
		"capacity_kwh":           b.cfg.CapacityKWh,
		"voltage":                b.voltage,
		"current":                b.current,
		"power_kw":               b.powerKW,
		"temperature_c":          b.temperature,
		"cycle_count":            b.EquivalentFullCycles(),
		"throughput_kwh":         b.throughput,
	})
}
