package device

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
)

// ConsumerConfig describes a load. Only the fields of the configured type
// are read.
type ConsumerConfig struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Profile    Profile `json:"profile"`
	Efficiency float64 `json:"efficiency"`
	// Jitter is the relative amplitude of the random load variation.
	Jitter  float64 `json:"jitter"`
	Voltage float64 `json:"voltage"`

	Occupants  int `json:"occupants"`
	Appliances int `json:"appliances"`

	Shifts      int     `json:"shifts"`
	MachineryKW float64 `json:"machinery_kw"`

	Ports      int     `json:"ports"`
	SessionKW  float64 `json:"session_kw"`
	MaxPowerKW float64 `json:"max_power_kw"`
	// ArrivalProb and DepartureProb are per-tick probabilities at peak;
	// off-peak values are a third and a quarter of them.
	ArrivalProb   float64 `json:"arrival_prob"`
	DepartureProb float64 `json:"departure_prob"`
}

// Validate reports configuration errors.
func (c ConsumerConfig) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("consumer id is required"))
	}
	ct, err := model.ParseConsumerType(c.Type)
	if err != nil {
		errs = append(errs, fmt.Errorf("consumer %s: %w", c.ID, err))
	}
	if err := c.Profile.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("consumer %s: %w", c.ID, err))
	}
	if c.Efficiency < 0 || c.Efficiency > 1 {
		errs = append(errs, fmt.Errorf("consumer %s: efficiency must be within (0,1]", c.ID))
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("consumer %s: jitter must be within [0,1)", c.ID))
	}
	switch ct {
	case model.ConsumerIndustry:
		if c.Shifts < 0 || c.Shifts > 3 {
			errs = append(errs, fmt.Errorf("consumer %s: shifts must be within [1,3]", c.ID))
		}
	case model.ConsumerEVCharging:
		if c.Ports <= 0 || c.SessionKW <= 0 || c.MaxPowerKW <= 0 {
			errs = append(errs, fmt.Errorf("consumer %s: ports, session_kw and max_power_kw must be positive", c.ID))
		}
		if c.ArrivalProb < 0 || c.ArrivalProb > 1 || c.DepartureProb < 0 || c.DepartureProb > 1 {
			errs = append(errs, fmt.Errorf("consumer %s: probabilities must be within [0,1]", c.ID))
		}
	}
	return errors.Join(errs...)
}

// Consumer is a house, industrial site or EV charging station.
type Consumer struct {
	base
	cfg    ConsumerConfig
	ctype  model.ConsumerType
	rng    *rand.Rand
	demand float64

	sessions int
}

// NewConsumer validates cfg and returns the load. rng drives jitter and EV
// sessions.
func NewConsumer(cfg ConsumerConfig, calc *cost.Calculator, rng *rand.Rand) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("consumer %s: random source is required", cfg.ID)
	}
	ct, _ := model.ParseConsumerType(cfg.Type)
	if cfg.Efficiency == 0 {
		cfg.Efficiency = 1
	}
	if cfg.Voltage == 0 {
		cfg.Voltage = 230
	}
	if cfg.Occupants == 0 {
		cfg.Occupants = 1
	}
	if cfg.Shifts == 0 {
		cfg.Shifts = 1
	}
	return &Consumer{base: newBase(cfg.ID, model.KindConsumer, string(ct), calc), cfg: cfg, ctype: ct, rng: rng}, nil
}

func (c *Consumer) ConsumerType() model.ConsumerType { return c.ctype }
func (c *Consumer) DemandKW() float64                { return c.demand }
func (c *Consumer) OperatingKW() float64             { return c.demand }
func (c *Consumer) Sessions() int                    { return c.sessions }

// RatedKW is the profile peak plus the type-specific maximum.
func (c *Consumer) RatedKW() float64 {
	switch c.ctype {
	case model.ConsumerEVCharging:
		return c.cfg.MaxPowerKW
	case model.ConsumerIndustry:
		return math.Max(c.cfg.Profile.PeakKW, c.cfg.Profile.BaseKW) + c.cfg.MachineryKW
	default:
		return math.Max(c.cfg.Profile.PeakKW, c.cfg.Profile.BaseKW) * (1 + c.cfg.Jitter) / c.cfg.Efficiency
	}
}

// Update starts a tick.
func (c *Consumer) Update(tick model.Tick) { c.begin(tick) }

func weekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// Demand returns the load for the tick and prices the consumed energy.
// The result is never negative.
func (c *Consumer) Demand(tick model.Tick) (float64, error) {
	if !c.connected {
		c.demand = 0
		return 0, nil
	}
	h := model.HourOfDay(tick.Time)
	load := c.cfg.Profile.At(h)
	op := cost.OpHouseConsumption

	switch c.ctype {
	case model.ConsumerHouse:
		presence := 1.0
		if !weekend(tick.Time) && h >= 9 && h < 17 {
			presence = 0.3
		}
		occupants := float64(c.cfg.Occupants)
		load = load*(0.3+0.7*presence)*(1+0.1*(occupants-1)) + 0.02*float64(c.cfg.Appliances)*presence
	case model.ConsumerIndustry:
		op = cost.OpIndustryConsumption
		if c.shiftActive(tick.Time, h) {
			load += c.cfg.MachineryKW
		} else {
			load *= 0.3
		}
	case model.ConsumerEVCharging:
		op = cost.OpEVCharging
		c.advanceSessions(h)
		load = math.Min(load+float64(c.sessions)*c.cfg.SessionKW, c.cfg.MaxPowerKW)
	}

	if c.cfg.Jitter > 0 {
		load *= 1 + (c.rng.Float64()*2-1)*c.cfg.Jitter
	}
	c.demand = math.Max(0, load/c.cfg.Efficiency)
	if _, err := c.acc.AddOperation(op, c.demand*tick.Hours(), tick.Time); err != nil {
		return c.demand, fmt.Errorf("consumer %s: %w", c.id, err)
	}
	return c.demand, nil
}

func (c *Consumer) shiftActive(t time.Time, h float64) bool {
	switch c.cfg.Shifts {
	case 3:
		return true
	case 2:
		return !weekend(t) && h >= 6 && h < 22
	default:
		return !weekend(t) && h >= 8 && h < 16
	}
}

// advanceSessions lets connected vehicles leave and free ports receive new
// arrivals. Evenings see more arrivals and mornings more departures.
func (c *Consumer) advanceSessions(h float64) {
	depart := c.cfg.DepartureProb / 4
	if h >= 6 && h < 10 {
		depart = c.cfg.DepartureProb
	}
	arrive := c.cfg.ArrivalProb / 3
	if h >= 17 && h < 23 {
		arrive = c.cfg.ArrivalProb
	}
	staying := 0
	for i := 0; i < c.sessions; i++ {
		if c.rng.Float64() >= depart {
			staying++
		}
	}
	c.sessions = staying
	free := c.cfg.Ports - c.sessions
	for i := 0; i < free; i++ {
		if c.rng.Float64() < arrive {
			c.sessions++
		}
	}
}

// Snapshot returns the demand state.
func (c *Consumer) Snapshot() model.State {
	values := map[string]float64{
		"current_demand_kw": c.demand,
		"voltage":           c.cfg.Voltage,
		"current":           c.demand * 1000 / c.cfg.Voltage,
		"efficiency":        c.cfg.Efficiency,
	}
	if c.ctype == model.ConsumerEVCharging {
		values["connected_vehicles"] = float64(c.sessions)
		values["ports"] = float64(c.cfg.Ports)
	}
	return c.state("", values)
}
