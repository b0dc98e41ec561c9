package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/gridsim/core/device"
	"github.com/kilianp07/gridsim/core/sim"
)

// SimulationConfig controls the simulated clock and the run loop.
type SimulationConfig struct {
	Start time.Time `json:"start"`
	// Timezone is an IANA zone name for time-of-day pricing and profiles.
	// When empty the offset of Start is used.
	Timezone string        `json:"timezone"`
	Tick     time.Duration `json:"tick"`
	// Ticks is the number of ticks to run; zero runs until interrupted.
	Ticks int64 `json:"ticks"`
	// RealtimeScale is simulated time per wall-clock time; zero runs as fast
	// as possible.
	RealtimeScale     float64 `json:"realtime_scale"`
	PublishEveryTicks int64   `json:"publish_every_ticks"`
	LogEveryTicks     int64   `json:"log_every_ticks"`
	// Seed feeds every random source of the run.
	Seed int64 `json:"seed"`
}

// Validate checks the clock settings.
func (c SimulationConfig) Validate() error {
	var errs []error
	if c.Start.IsZero() {
		errs = append(errs, errors.New("simulation.start is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("simulation.tick %s must be positive", c.Tick))
	}
	if c.Ticks < 0 || c.RealtimeScale < 0 || c.PublishEveryTicks < 0 || c.LogEveryTicks < 0 {
		errs = append(errs, errors.New("simulation counts and realtime_scale must not be negative"))
	}
	return errors.Join(errs...)
}

// Location returns the zone simulated wall-clock time is expressed in.
func (c SimulationConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return c.Start.Location(), nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("simulation.timezone: %w", err)
	}
	return loc, nil
}

// LocalStart returns Start expressed in Location.
func (c SimulationConfig) LocalStart() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	return c.Start.In(loc), nil
}

// GridConfig lists the devices of the microgrid.
type GridConfig struct {
	Batteries  []device.BatteryConfig   `json:"batteries"`
	Generators []device.GeneratorConfig `json:"generators"`
	Consumers  []device.ConsumerConfig  `json:"consumers"`
	Components []device.ComponentConfig `json:"components"`
}

// Validate checks every device and the topology references.
func (c GridConfig) Validate() error {
	var errs []error
	ids := make(map[string]bool)
	seen := func(id string) {
		if id == "" {
			return
		}
		if ids[id] {
			errs = append(errs, fmt.Errorf("duplicate device id %q", id))
		}
		ids[id] = true
	}
	inverters := make(map[string]bool)
	for _, b := range c.Batteries {
		seen(b.ID)
		errs = append(errs, b.Validate())
	}
	for _, cc := range c.Components {
		seen(cc.ID)
		errs = append(errs, cc.Validate())
		if cc.Type == "inverter" {
			inverters[cc.ID] = true
		}
	}
	external := 0
	for _, g := range c.Generators {
		seen(g.ID)
		errs = append(errs, g.Validate())
		if g.Type == "external_grid" {
			external++
		}
		if g.Inverter != "" && !inverters[g.Inverter] {
			errs = append(errs, fmt.Errorf("generator %s: unknown inverter %q", g.ID, g.Inverter))
		}
	}
	if external != 1 {
		errs = append(errs, fmt.Errorf("grid needs exactly one external_grid generator, found %d", external))
	}
	for _, cc := range c.Consumers {
		seen(cc.ID)
		errs = append(errs, cc.Validate())
	}
	return errors.Join(errs...)
}

// PolicyConfig selects the storage allocation and wear models.
type PolicyConfig struct {
	// Allocation is proportional or priority.
	Allocation string            `json:"allocation"`
	Wear       device.WearConfig `json:"wear"`
}

// Validate checks that both policies exist.
func (c PolicyConfig) Validate() error {
	_, aerr := sim.NewAllocator(c.Allocation)
	_, werr := device.NewWearPolicy(c.Wear)
	return errors.Join(aerr, werr)
}
