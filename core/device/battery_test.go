package device

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
)

var june7pm = time.Date(2025, time.June, 12, 19, 0, 0, 0, time.UTC)

func calc(t *testing.T) *cost.Calculator {
	t.Helper()
	c, err := cost.NewCalculator(cost.DefaultTariff())
	require.NoError(t, err)
	return c
}

func batteryCfg(soc float64) BatteryConfig {
	return BatteryConfig{
		ID:                  "bess-1",
		CapacityKWh:         100,
		InitialSoC:          soc,
		RatedVoltage:        400,
		RatedPowerKW:        50,
		ChargeEfficiency:    1,
		DischargeEfficiency: 1,
		InternalResistance:  0.01,
	}
}

func newBattery(t *testing.T, cfg BatteryConfig, wear WearPolicy) *Battery {
	t.Helper()
	b, err := NewBattery(cfg, calc(t), wear)
	require.NoError(t, err)
	return b
}

func TestBatteryChargeClampsToHeadroom(t *testing.T) {
	cfg := batteryCfg(95)
	cfg.RatedPowerKW = 20
	b := newBattery(t, cfg, nil)

	added, err := b.Charge(20, 1, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, added, 1e-9)
	assert.InDelta(t, 100.0, b.RemainingKWh(), 1e-9)
	assert.InDelta(t, 100.0, b.SoC(), 1e-9)
	assert.Equal(t, model.ModeCharging, b.Mode())

	added, err = b.Charge(20, 1, june7pm)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, model.ModeIdle, b.Mode())
}

func TestBatteryDischargeEmpty(t *testing.T) {
	b := newBattery(t, batteryCfg(0), nil)
	removed, err := b.Discharge(10, 1, june7pm)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, model.ModeIdle, b.Mode())
	assert.Zero(t, b.RemainingKWh())
	assert.Zero(t, b.Costs().TotalDischargingCost)
}

func TestBatteryDischargeClampsToRemaining(t *testing.T) {
	b := newBattery(t, batteryCfg(5), nil)
	removed, err := b.Discharge(50, 1, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, removed, 1e-9)
	assert.Zero(t, b.RemainingKWh())
	assert.Equal(t, model.ModeDischarging, b.Mode())
}

func TestBatteryRoundTrip(t *testing.T) {
	b := newBattery(t, batteryCfg(50), NoWear{})
	before := b.SoC()
	stored, err := b.Charge(12, 0.25, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, stored, 1e-9)
	removed, err := b.Discharge(stored/0.25, 0.25, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, stored, removed, 1e-9)
	assert.InDelta(t, before, b.SoC(), 1e-9)
	assert.Equal(t, 100.0, b.SoH())
}

func TestBatteryEfficiency(t *testing.T) {
	cfg := batteryCfg(50)
	cfg.ChargeEfficiency = 0.9
	cfg.DischargeEfficiency = 0.8
	b := newBattery(t, cfg, nil)

	stored, err := b.Charge(10, 1, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, stored, 1e-9)

	removed, err := b.Discharge(8, 1, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, removed, 1e-9)
	assert.InDelta(t, 49.0, b.RemainingKWh(), 1e-9)
}

func TestBatteryChargingCost(t *testing.T) {
	b := newBattery(t, batteryCfg(0), nil)
	_, err := b.Charge(10, 1, june7pm)
	require.NoError(t, err)
	c := b.Costs()
	assert.InDelta(t, 117.0, c.TotalChargingCost, 1e-9)
	assert.InDelta(t, 117.0, c.CurrentOperationCost, 1e-9)
	assert.Equal(t, 1.5, c.TimeMultiplier)
	assert.Equal(t, 1.2, c.SeasonalMultiplier)

	b.Update(model.Tick{Index: 1, Time: june7pm.Add(time.Hour), Duration: time.Hour})
	assert.Zero(t, b.Costs().CurrentOperationCost)
	assert.InDelta(t, 117.0, b.Costs().TotalChargingCost, 1e-9)
}

func TestBatteryStorageCost(t *testing.T) {
	b := newBattery(t, batteryCfg(50), nil)
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c, err := b.StorageCost(1, noon)
	require.NoError(t, err)
	assert.InDelta(t, 0.1*50*1.2, c, 1e-9)
	assert.InDelta(t, c, b.Costs().TotalStorageCost, 1e-9)

	b.Fault()
	c, err = b.StorageCost(1, noon)
	require.NoError(t, err)
	assert.Greater(t, c, 0.0)
}

func TestBatteryWear(t *testing.T) {
	b := newBattery(t, batteryCfg(0), ThroughputWear{PercentPerKWh: 0.01})
	_, err := b.Charge(10, 1, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, b.SoH(), 1e-9)
	prev := b.SoH()
	_, err = b.Discharge(10, 1, june7pm)
	require.NoError(t, err)
	assert.LessOrEqual(t, b.SoH(), prev)
	assert.InDelta(t, 0.1, b.EquivalentFullCycles(), 1e-9)
}

func TestBatteryWearFloorFaults(t *testing.T) {
	cfg := batteryCfg(0)
	cfg.MinSoH = 99.95
	b := newBattery(t, cfg, ThroughputWear{PercentPerKWh: 0.01})
	_, err := b.Charge(10, 1, june7pm)
	require.NoError(t, err)
	assert.Equal(t, model.ModeFault, b.Mode())
}

func TestBatteryFaultAndReset(t *testing.T) {
	b := newBattery(t, batteryCfg(50), nil)
	b.Fault()
	added, err := b.Charge(10, 1, june7pm)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, b.ChargeLimitKWh(1))
	b.Update(model.Tick{Time: june7pm, Duration: time.Hour})
	assert.Equal(t, model.ModeFault, b.Mode())

	b.Reset()
	assert.Equal(t, model.ModeIdle, b.Mode())
	added, err = b.Charge(10, 1, june7pm)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, added, 1e-9)
}

func TestBatteryOverTemperatureFaults(t *testing.T) {
	cfg := batteryCfg(0)
	cfg.InternalResistance = 0.5
	cfg.MaxTemperatureC = 30
	b := newBattery(t, cfg, nil)
	_, err := b.Charge(50, 1, june7pm)
	require.NoError(t, err)
	assert.Equal(t, model.ModeFault, b.Mode())
	assert.Greater(t, b.TemperatureC(), 30.0)

	b.SetAmbient(20)
	for i := 0; i < 20; i++ {
		b.Update(model.Tick{Time: june7pm, Duration: time.Hour})
	}
	assert.InDelta(t, 20, b.TemperatureC(), 0.1)
}

func TestBatteryLimits(t *testing.T) {
	cfg := batteryCfg(90)
	cfg.ChargeEfficiency = 0.5
	cfg.MaxDischargeKW = 20
	b := newBattery(t, cfg, nil)
	assert.InDelta(t, 20.0, b.ChargeLimitKWh(1), 1e-9)
	assert.InDelta(t, 12.5, b.ChargeLimitKWh(0.25), 1e-9)
	assert.InDelta(t, 20.0, b.DischargeLimitKWh(1), 1e-9)

	b.SetConnected(false)
	assert.Zero(t, b.DischargeLimitKWh(1))
}

func TestBatteryInvariantsUnderRandomOps(t *testing.T) {
	cfg := batteryCfg(40)
	cfg.ChargeEfficiency = 0.93
	cfg.DischargeEfficiency = 0.91
	b := newBattery(t, cfg, ThroughputWear{PercentPerKWh: 0.0001})
	rng := rand.New(rand.NewSource(1))
	at := june7pm
	for i := 0; i < 5000; i++ {
		at = at.Add(15 * time.Minute)
		b.Update(model.Tick{Index: int64(i), Time: at, Duration: 15 * time.Minute})
		p := rng.Float64() * 80
		var err error
		if rng.Intn(2) == 0 {
			_, err = b.Charge(p, 0.25, at)
		} else {
			_, err = b.Discharge(p, 0.25, at)
		}
		require.NoError(t, err)
		if b.RemainingKWh() < 0 || b.RemainingKWh() > b.CapacityKWh() {
			t.Fatalf("step %d: remaining %v out of bounds", i, b.RemainingKWh())
		}
		if math.Abs(b.SoC()-100*b.RemainingKWh()/b.CapacityKWh()) > 1e-9 {
			t.Fatalf("step %d: soc mismatch", i)
		}
		st := b.Snapshot()
		assert.InDelta(t, b.SoC(), st.Values["soc_percent"], 1e-12)
	}
}

func TestBatteryConfigValidation(t *testing.T) {
	bad := []func(*BatteryConfig){
		func(c *BatteryConfig) { c.ID = "" },
		func(c *BatteryConfig) { c.CapacityKWh = 0 },
		func(c *BatteryConfig) { c.InitialSoC = 120 },
		func(c *BatteryConfig) { c.ChargeEfficiency = 0 },
		func(c *BatteryConfig) { c.DischargeEfficiency = 1.1 },
		func(c *BatteryConfig) { c.Role = "satellite" },
		func(c *BatteryConfig) { c.RatedVoltage = 0 },
	}
	for i, mutate := range bad {
		cfg := batteryCfg(50)
		mutate(&cfg)
		if _, err := NewBattery(cfg, calc(t), nil); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestWearPolicies(t *testing.T) {
	w, err := NewWearPolicy(WearConfig{Type: "cycle", Rate: 0.02})
	require.NoError(t, err)
	assert.InDelta(t, 0.02, w.Wear(100, 100), 1e-12)
	assert.InDelta(t, 0.01, w.Wear(100, 200), 1e-12)

	w, err = NewWearPolicy(WearConfig{Rate: 0.001})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, w.Wear(100, 100), 1e-12)

	w, err = NewWearPolicy(WearConfig{Type: "none"})
	require.NoError(t, err)
	assert.Zero(t, w.Wear(100, 100))

	_, err = NewWearPolicy(WearConfig{Type: "calendar"})
	assert.Error(t, err)
	_, err = NewWearPolicy(WearConfig{Rate: -1})
	assert.Error(t, err)
}
