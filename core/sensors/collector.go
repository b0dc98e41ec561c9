package sensors

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/kilianp07/gridsim/core/logger"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/monitoring"
)

var (
	ErrOutOfRange = errors.New("sensor value out of range")
	ErrNaN        = errors.New("sensor value is NaN")
)

// Config controls the collector behaviour.
type Config struct {
	Ranges Ranges `json:"ranges"`
	// Smoothing is the EWMA weight given to the new reading, in (0,1].
	Smoothing float64 `json:"smoothing"`
	// Strict turns a reading outside its range into an error instead of a
	// logged, clamped deviation.
	Strict  bool          `json:"strict"`
	Weather WeatherConfig `json:"weather"`
}

// DefaultConfig returns the collector configuration for standalone runs.
func DefaultConfig() Config {
	return Config{Ranges: DefaultRanges(), Smoothing: 0.3, Weather: DefaultWeatherConfig()}
}

// Validate checks the range table and the smoothing factor.
func (c Config) Validate() error {
	var errs []error
	if err := c.Ranges.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		errs = append(errs, fmt.Errorf("smoothing %g must be in (0,1]", c.Smoothing))
	}
	return errors.Join(errs...)
}

// Input describes the device a snapshot is collected for.
type Input struct {
	DeviceID    string
	Kind        model.DeviceKind
	Type        string
	OperatingKW float64
	RatedKW     float64
	// TemperatureC is the modelled device temperature, when the device has one.
	TemperatureC *float64
}

func (in Input) load() float64 {
	if in.RatedKW <= 0 {
		return 0
	}
	return clamp(math.Abs(in.OperatingKW)/in.RatedKW, 0, 1)
}

// Snapshot is one tick of synthetic sensor readings for a device.
type Snapshot struct {
	Fields map[string]float64
	Labels map[string]string
}

// Collector synthesizes per-device sensor snapshots. The only state kept
// across ticks is the smoothed value of each (device, field) pair.
type Collector struct {
	cfg        Config
	rng        *rand.Rand
	log        logger.Logger
	prev       map[string]map[string]float64
	deviations atomic.Int64
}

// NewCollector validates cfg and returns a collector drawing noise from rng.
func NewCollector(cfg Config, rng *rand.Rand, log logger.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{cfg: cfg, rng: rng, log: log, prev: make(map[string]map[string]float64)}, nil
}

// Deviations returns how many readings had to be clamped so far.
func (c *Collector) Deviations() int64 { return c.deviations.Load() }

func (c *Collector) noise(amp float64) float64 { return (c.rng.Float64()*2 - 1) * amp }

type reading struct {
	name string
	raw  float64
}

// Collect produces the snapshot for one device at the conditions of the tick.
func (c *Collector) Collect(in Input, cond Conditions) (Snapshot, error) {
	load := in.load()
	equipTemp := cond.AmbientC + 25*load
	if in.TemperatureC != nil {
		equipTemp = *in.TemperatureC
	}

	rs := []reading{
		{FieldIrradiance, cond.IrradianceWm2 * (1 + c.noise(0.01))},
		{FieldWindSpeed, cond.WindSpeedMS * (1 + c.noise(0.03))},
		{FieldAmbientTemperature, cond.AmbientC + c.noise(0.5)},
		{FieldHumidity, cond.HumidityPct + c.noise(2)},
		{FieldPressure, cond.PressureHPa + c.noise(0.5)},
		{FieldCloudCover, cond.CloudCoverPct},
		{FieldPrecipitation, cond.PrecipitationMMH},
		{FieldVisibility, cond.VisibilityKM},

		{FieldGridFrequency, 50 - 0.2*(load-0.5) + c.noise(0.05)},
		{FieldVoltageTHD, 1 + 2*load + c.noise(0.3)},
		{FieldPowerFactor, 0.97 - 0.07*load + c.noise(0.01)},
		{FieldVoltageImbalance, 0.3 + load + c.noise(0.2)},

		{FieldVibration, 0.5 + 4*load + c.noise(0.1)},
		{FieldNoiseLevel, 45 + 20*load + c.noise(2)},
		{FieldEquipmentTemperature, equipTemp + c.noise(1)},
	}
	labels := map[string]string{}

	switch in.Kind {
	case model.KindBattery:
		rs = append(rs,
			reading{FieldBatteryTemperature, equipTemp + c.noise(0.5)},
			reading{FieldCellImbalance, 1 + 8*load + c.noise(0.5)},
			reading{FieldThermalRunawayRisk, 0.5 + 3*load + math.Max(0, equipTemp-45)/5 + c.noise(0.2)},
		)
		labels["cooling_status"] = "idle"
		if equipTemp > 35 {
			labels["cooling_status"] = "active"
		}
	case model.KindGeneration:
		switch model.GenerationType(in.Type) {
		case model.GenerationSolar:
			rs = append(rs,
				reading{FieldPanelTemperature, cond.AmbientC + cond.IrradianceWm2/1000*25 + c.noise(1)},
				reading{FieldPanelSoiling, 5 + c.noise(0.5)},
				reading{FieldInverterEfficiency, 0.97 - 0.02*(1-load) + c.noise(0.003)},
			)
		case model.GenerationWind:
			rs = append(rs,
				reading{FieldRotorSpeed, math.Min(cond.WindSpeedMS, 25) / 25 * 20 * (1 + c.noise(0.03))},
				reading{FieldBladePitch, 2 + 20*math.Max(0, (cond.WindSpeedMS-12)/13) + c.noise(0.5)},
				reading{FieldTurbineEfficiency, 0.9 + c.noise(0.01)},
			)
		}
	case model.KindConsumer:
		switch model.ConsumerType(in.Type) {
		case model.ConsumerHouse:
			rs = append(rs, reading{FieldIndoorTemperature, 21 + 0.2*(cond.AmbientC-21) + c.noise(0.5)})
			switch {
			case cond.AmbientC > 26:
				labels["hvac_status"] = "cooling"
			case cond.AmbientC < 18:
				labels["hvac_status"] = "heating"
			default:
				labels["hvac_status"] = "idle"
			}
		case model.ConsumerIndustry:
			rs = append(rs, reading{FieldMachineLoad, 2 + 96*load + c.noise(2)})
			labels["production_line_status"] = "idle"
			if load > 0.2 {
				labels["production_line_status"] = "active"
			}
		case model.ConsumerEVCharging:
			rs = append(rs, reading{FieldChargingEfficiency, 0.93 + c.noise(0.01)})
			labels["connector_status"] = "available"
			if in.OperatingKW > 0 {
				labels["connector_status"] = "connected"
			}
		}
	case model.KindGridComponent:
		rs = append(rs, reading{FieldWindingTemperature, cond.AmbientC + 40*load + c.noise(1)})
	}

	prev := c.prev[in.DeviceID]
	if prev == nil {
		prev = make(map[string]float64, len(rs))
		c.prev[in.DeviceID] = prev
	}
	snap := Snapshot{Fields: make(map[string]float64, len(rs)), Labels: labels}
	for _, r := range rs {
		v, err := c.bound(in, r)
		if err != nil {
			return Snapshot{}, err
		}
		if p, ok := prev[r.name]; ok {
			v = c.cfg.Smoothing*v + (1-c.cfg.Smoothing)*p
		}
		prev[r.name] = v
		snap.Fields[r.name] = v
	}
	return snap, nil
}

// bound checks a raw reading against its declared range.
func (c *Collector) bound(in Input, r reading) (float64, error) {
	if math.IsNaN(r.raw) || math.IsInf(r.raw, 0) {
		return 0, fmt.Errorf("%w: %s on %s", ErrNaN, r.name, in.DeviceID)
	}
	rg, ok := c.cfg.Ranges[r.name]
	if !ok {
		return 0, fmt.Errorf("%w: no range for %s", ErrOutOfRange, r.name)
	}
	if rg.Contains(r.raw) {
		return r.raw, nil
	}
	err := fmt.Errorf("%w: %s=%.4f outside [%g, %g] on %s", ErrOutOfRange, r.name, r.raw, rg.Min, rg.Max, in.DeviceID)
	if c.cfg.Strict {
		return 0, err
	}
	c.deviations.Add(1)
	c.log.Warnw("sensor deviation clamped", map[string]any{
		"device_id": in.DeviceID,
		"field":     r.name,
		"value":     r.raw,
		"min":       rg.Min,
		"max":       rg.Max,
	})
	monitoring.CaptureException(err, map[string]string{"device_id": in.DeviceID, "field": r.name})
	return rg.Clamp(r.raw), nil
}

// Forget drops the smoothing state of a device.
func (c *Collector) Forget(deviceID string) { delete(c.prev, deviceID) }

// Tracks reports whether smoothing state is held for a device.
func (c *Collector) Tracks(deviceID string) bool { return c.prev[deviceID] != nil }
