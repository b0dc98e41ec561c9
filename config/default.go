package config

import (
	"time"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/device"
	"github.com/kilianp07/gridsim/core/sensors"
	"github.com/kilianp07/gridsim/core/telemetry"
)

// Default returns a complete configuration for standalone runs: one day at
// 15 minute ticks over a small solar, wind and storage microgrid.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Start:             time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Tick:              15 * time.Minute,
			Ticks:             96,
			PublishEveryTicks: 1,
			LogEveryTicks:     4,
			Seed:              42,
		},
		Tariff:  cost.DefaultTariff(),
		Sensors: sensors.DefaultConfig(),
		Grid: GridConfig{
			Batteries: []device.BatteryConfig{
				{
					ID: "bess-1", Role: "grid", CapacityKWh: 500, InitialSoC: 50, RatedVoltage: 800, RatedPowerKW: 250,
					ChargeEfficiency: 0.95, DischargeEfficiency: 0.95, InternalResistance: 0.01, MinSoH: 60,
				},
				{
					ID: "plant-bess-1", Role: "plant", Site: "solar-1", CapacityKWh: 200, InitialSoC: 40, RatedVoltage: 700,
					RatedPowerKW: 100, ChargeEfficiency: 0.94, DischargeEfficiency: 0.94, InternalResistance: 0.015, Priority: 1,
				},
				{
					ID: "ev-1", Role: "ev", CapacityKWh: 60, InitialSoC: 70, RatedVoltage: 400, RatedPowerKW: 11,
					ChargeEfficiency: 0.92, DischargeEfficiency: 0.92, InternalResistance: 0.05, Priority: 2,
				},
			},
			Generators: []device.GeneratorConfig{
				{ID: "grid", Type: "external_grid"},
				{ID: "solar-1", Type: "solar", RatedKW: 600, Inverter: "inv-1", RampKWPerH: 1200},
				{ID: "wind-1", Type: "wind", RatedKW: 300, RampKWPerH: 600},
			},
			Consumers: []device.ConsumerConfig{
				{
					ID: "house-1", Type: "house", Occupants: 4, Appliances: 12, Jitter: 0.05,
					Profile: device.Profile{BaseKW: 40, PeakKW: 120, PeakStart: 18, PeakEnd: 22, TransitionH: 1.5},
				},
				{
					ID: "industry-1", Type: "industry", Shifts: 2, MachineryKW: 150, Efficiency: 0.95, Jitter: 0.03, Voltage: 415,
					Profile: device.Profile{BaseKW: 80, PeakKW: 160, PeakStart: 9, PeakEnd: 17, TransitionH: 1},
				},
				{
					ID: "ev-station-1", Type: "ev_charging", Ports: 8, SessionKW: 22, MaxPowerKW: 150,
					ArrivalProb: 0.25, DepartureProb: 0.2,
					Profile: device.Profile{BaseKW: 2, PeakKW: 10, PeakStart: 17, PeakEnd: 21, TransitionH: 1},
				},
			},
			Components: []device.ComponentConfig{
				{ID: "inv-1", Type: "inverter", Efficiency: 0.97, RatedKW: 650},
				{ID: "tx-1", Type: "transformer", Efficiency: 0.985, RatedKW: 1000},
				{ID: "sub-1", Type: "substation", Efficiency: 0.995, RatedKW: 2000},
			},
		},
		Policy: PolicyConfig{
			Allocation: "proportional",
			Wear:       device.WearConfig{Type: "throughput", Rate: 0.0005},
		},
		Publish: telemetry.DefaultDispatcherConfig(),
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{},
		API:     APIConfig{},
	}
}
