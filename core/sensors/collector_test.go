package sensors

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/infra/logger"
)

func inputs() []Input {
	return []Input{
		{DeviceID: "bess", Kind: model.KindBattery, Type: string(model.RoleGrid), RatedKW: 50},
		{DeviceID: "pv", Kind: model.KindGeneration, Type: string(model.GenerationSolar), RatedKW: 100},
		{DeviceID: "wt", Kind: model.KindGeneration, Type: string(model.GenerationWind), RatedKW: 200},
		{DeviceID: "grid", Kind: model.KindGeneration, Type: string(model.GenerationExternalGrid)},
		{DeviceID: "house", Kind: model.KindConsumer, Type: string(model.ConsumerHouse), RatedKW: 8},
		{DeviceID: "plant", Kind: model.KindConsumer, Type: string(model.ConsumerIndustry), RatedKW: 400},
		{DeviceID: "evcs", Kind: model.KindConsumer, Type: string(model.ConsumerEVCharging), RatedKW: 44},
		{DeviceID: "tx", Kind: model.KindGridComponent, Type: string(model.ComponentTransformer), RatedKW: 500},
	}
}

func TestCollectStaysInRangeOverLongRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strict = true
	rng := rand.New(rand.NewSource(42))
	c, err := NewCollector(cfg, rng, logger.NopLogger{})
	require.NoError(t, err)
	w := NewWeather(cfg.Weather, rng)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6000; i++ {
		at = at.Add(89 * time.Minute)
		cond := w.Advance(at)
		for _, in := range inputs() {
			in.OperatingKW = rng.Float64() * in.RatedKW
			snap, err := c.Collect(in, cond)
			if err != nil {
				t.Fatalf("tick %d %s: %v", i, in.DeviceID, err)
			}
			for name, v := range snap.Fields {
				r := cfg.Ranges[name]
				if math.IsNaN(v) || !r.Contains(v) {
					t.Fatalf("tick %d %s: %s=%v outside [%v,%v]", i, in.DeviceID, name, v, r.Min, r.Max)
				}
			}
		}
	}
	assert.Zero(t, c.Deviations())
}

func TestCollectKindSpecificFields(t *testing.T) {
	c, err := NewCollector(DefaultConfig(), rand.New(rand.NewSource(1)), logger.NopLogger{})
	require.NoError(t, err)
	cond := NewWeather(DefaultWeatherConfig(), rand.New(rand.NewSource(2))).
		Advance(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	checks := map[string][]string{
		"bess":  {FieldBatteryTemperature, FieldCellImbalance, FieldThermalRunawayRisk},
		"pv":    {FieldPanelTemperature, FieldInverterEfficiency},
		"wt":    {FieldRotorSpeed, FieldBladePitch},
		"house": {FieldIndoorTemperature},
		"plant": {FieldMachineLoad},
		"evcs":  {FieldChargingEfficiency},
		"tx":    {FieldWindingTemperature},
	}
	for _, in := range inputs() {
		snap, err := c.Collect(in, cond)
		require.NoError(t, err)
		assert.Contains(t, snap.Fields, FieldIrradiance)
		assert.Contains(t, snap.Fields, FieldVibration)
		for _, f := range checks[in.DeviceID] {
			assert.Contains(t, snap.Fields, f, in.DeviceID)
		}
	}
}

func TestCollectLoadRaisesVibration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing = 1
	c, err := NewCollector(cfg, rand.New(rand.NewSource(3)), logger.NopLogger{})
	require.NoError(t, err)
	cond := Conditions{Time: time.Now(), AmbientC: 20, HumidityPct: 50, PressureHPa: 1013, VisibilityKM: 10}

	idle, err := c.Collect(Input{DeviceID: "a", Kind: model.KindGridComponent, RatedKW: 100}, cond)
	require.NoError(t, err)
	busy, err := c.Collect(Input{DeviceID: "b", Kind: model.KindGridComponent, RatedKW: 100, OperatingKW: 100}, cond)
	require.NoError(t, err)
	assert.Greater(t, busy.Fields[FieldVibration], idle.Fields[FieldVibration])
	assert.Greater(t, busy.Fields[FieldWindingTemperature], idle.Fields[FieldWindingTemperature])
}

func TestCollectDeviationHandling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ranges[FieldAmbientTemperature] = Range{Min: 100, Max: 120}
	cond := Conditions{Time: time.Now(), AmbientC: 20, HumidityPct: 50, PressureHPa: 1013, VisibilityKM: 10}
	in := Input{DeviceID: "x", Kind: model.KindGridComponent, RatedKW: 10}

	lenient, err := NewCollector(cfg, rand.New(rand.NewSource(4)), logger.NopLogger{})
	require.NoError(t, err)
	snap, err := lenient.Collect(in, cond)
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Fields[FieldAmbientTemperature])
	assert.Equal(t, int64(1), lenient.Deviations())

	cfg.Strict = true
	strict, err := NewCollector(cfg, rand.New(rand.NewSource(4)), logger.NopLogger{})
	require.NoError(t, err)
	_, err = strict.Collect(in, cond)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestCollectRejectsNaN(t *testing.T) {
	c, err := NewCollector(DefaultConfig(), rand.New(rand.NewSource(5)), logger.NopLogger{})
	require.NoError(t, err)
	nan := math.NaN()
	_, err = c.Collect(Input{DeviceID: "b", Kind: model.KindBattery, RatedKW: 10, TemperatureC: &nan},
		Conditions{Time: time.Now(), HumidityPct: 50, PressureHPa: 1013, VisibilityKM: 10})
	assert.ErrorIs(t, err, ErrNaN)
}

func TestCollectSmoothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Smoothing = 0.5
	c, err := NewCollector(cfg, rand.New(rand.NewSource(6)), logger.NopLogger{})
	require.NoError(t, err)
	in := Input{DeviceID: "s", Kind: model.KindGridComponent, RatedKW: 10}
	cold := Conditions{Time: time.Now(), AmbientC: 10, HumidityPct: 50, PressureHPa: 1013, VisibilityKM: 10}
	hot := cold
	hot.AmbientC = 30

	_, err = c.Collect(in, cold)
	require.NoError(t, err)
	snap, err := c.Collect(in, hot)
	require.NoError(t, err)
	assert.InDelta(t, 20, snap.Fields[FieldAmbientTemperature], 1)

	assert.True(t, c.Tracks("s"))
	c.Forget("s")
	assert.False(t, c.Tracks("s"))
	snap, err = c.Collect(in, hot)
	require.NoError(t, err)
	assert.InDelta(t, 30, snap.Fields[FieldAmbientTemperature], 0.5)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Smoothing = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	delete(cfg.Ranges, FieldVibration)
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ranges[FieldHumidity] = Range{Min: 10, Max: 5}
	assert.Error(t, cfg.Validate())
}
