package sensors

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Range is the physically plausible interval of a sensor field.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the closed range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Clamp bounds v to the range.
func (r Range) Clamp(v float64) float64 { return math.Min(r.Max, math.Max(r.Min, v)) }

// Ranges maps sensor field names to their declared range.
type Ranges map[string]Range

// Validate rejects empty or inverted ranges and missing fields.
func (rs Ranges) Validate() error {
	var errs []error
	for _, f := range Fields() {
		if _, ok := rs[f]; !ok {
			errs = append(errs, fmt.Errorf("missing range for sensor field %s", f))
		}
	}
	names := make([]string, 0, len(rs))
	for n := range rs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r := rs[n]
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min >= r.Max {
			errs = append(errs, fmt.Errorf("sensor field %s: invalid range [%g, %g]", n, r.Min, r.Max))
		}
	}
	return errors.Join(errs...)
}

// Sensor field names.
const (
	FieldIrradiance         = "irradiance"
	FieldWindSpeed          = "wind_speed"
	FieldAmbientTemperature = "ambient_temperature"
	FieldHumidity           = "humidity"
	FieldPressure           = "pressure"
	FieldCloudCover         = "cloud_cover"
	FieldPrecipitation      = "precipitation"
	FieldVisibility         = "visibility"

	FieldGridFrequency    = "grid_frequency"
	FieldVoltageTHD       = "voltage_thd"
	FieldPowerFactor      = "power_factor"
	FieldVoltageImbalance = "voltage_imbalance"

	FieldVibration            = "vibration"
	FieldNoiseLevel           = "noise_level"
	FieldEquipmentTemperature = "equipment_temperature"

	FieldBatteryTemperature = "battery_temperature"
	FieldCellImbalance      = "cell_imbalance"
	FieldThermalRunawayRisk = "thermal_runaway_risk"
	FieldPanelTemperature   = "panel_temperature"
	FieldPanelSoiling       = "panel_soiling"
	FieldInverterEfficiency = "inverter_efficiency"
	FieldRotorSpeed         = "rotor_speed"
	FieldBladePitch         = "blade_pitch"
	FieldTurbineEfficiency  = "turbine_efficiency"
	FieldIndoorTemperature  = "indoor_temperature"
	FieldMachineLoad        = "machine_load"
	FieldChargingEfficiency = "charging_efficiency"
	FieldWindingTemperature = "winding_temperature"
)

// DefaultRanges returns the range table used by standalone runs and tests.
func DefaultRanges() Ranges {
	return Ranges{
		FieldIrradiance:         {0, 1400},
		FieldWindSpeed:          {0, 40},
		FieldAmbientTemperature: {-30, 55},
		FieldHumidity:           {0, 100},
		FieldPressure:           {950, 1060},
		FieldCloudCover:         {0, 100},
		FieldPrecipitation:      {0, 50},
		FieldVisibility:         {0.1, 20},

		FieldGridFrequency:    {49, 51},
		FieldVoltageTHD:       {0, 8},
		FieldPowerFactor:      {0.7, 1},
		FieldVoltageImbalance: {0, 5},

		FieldVibration:            {0, 20},
		FieldNoiseLevel:           {30, 110},
		FieldEquipmentTemperature: {-30, 120},

		FieldBatteryTemperature: {-20, 80},
		FieldCellImbalance:      {0, 50},
		FieldThermalRunawayRisk: {0, 10},
		FieldPanelTemperature:   {-30, 95},
		FieldPanelSoiling:       {0, 30},
		FieldInverterEfficiency: {0.8, 1},
		FieldRotorSpeed:         {0, 30},
		FieldBladePitch:         {0, 90},
		FieldTurbineEfficiency:  {0.7, 1},
		FieldIndoorTemperature:  {5, 40},
		FieldMachineLoad:        {0, 100},
		FieldChargingEfficiency: {0.8, 1},
		FieldWindingTemperature: {-30, 150},
	}
}

// Fields lists every field the collector may emit.
func Fields() []string {
	names := make([]string, 0, 28)
	for n := range DefaultRanges() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
