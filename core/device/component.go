package device

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
)

// ComponentConfig describes a passive grid element.
type ComponentConfig struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Efficiency float64 `json:"efficiency"`
	RatedKW    float64 `json:"rated_kw"`
	// Operation overrides the rate the throughput is priced at.
	Operation string `json:"operation,omitempty"`
}

// Validate reports configuration errors.
func (c ComponentConfig) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("component id is required"))
	}
	if _, err := model.ParseComponentType(c.Type); err != nil {
		errs = append(errs, fmt.Errorf("component %s: %w", c.ID, err))
	}
	if c.Efficiency <= 0 || c.Efficiency > 1 {
		errs = append(errs, fmt.Errorf("component %s: efficiency must be within (0,1]", c.ID))
	}
	if c.Operation != "" {
		if _, err := cost.ParseOperation(c.Operation); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

func defaultOperation(t model.ComponentType) cost.Operation {
	switch t {
	case model.ComponentSubstation:
		return cost.OpSubstation
	case model.ComponentTransformer:
		return cost.OpTransmission
	default:
		return cost.OpDistribution
	}
}

// Component applies an efficiency factor to the power flowing through it.
type Component struct {
	base
	cfg   ComponentConfig
	ctype model.ComponentType
	op    cost.Operation

	powerIn, powerOut float64
	throughputKWh     float64
	lossKWh           float64
}

// NewComponent validates cfg and returns the element.
func NewComponent(cfg ComponentConfig, calc *cost.Calculator) (*Component, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ct, _ := model.ParseComponentType(cfg.Type)
	op := defaultOperation(ct)
	if cfg.Operation != "" {
		op = cost.Operation(cfg.Operation)
	}
	return &Component{base: newBase(cfg.ID, model.KindGridComponent, string(ct), calc), cfg: cfg, ctype: ct, op: op}, nil
}

func (c *Component) ComponentType() model.ComponentType { return c.ctype }
func (c *Component) Efficiency() float64                { return c.cfg.Efficiency }
func (c *Component) RatedKW() float64                   { return c.cfg.RatedKW }
func (c *Component) OperatingKW() float64               { return c.powerIn }
func (c *Component) Operation() cost.Operation          { return c.op }

// Factor is the fraction of power passed on. A disconnected element is an
// open circuit.
func (c *Component) Factor() float64 {
	if !c.connected {
		return 0
	}
	return c.cfg.Efficiency
}

// Update starts a tick.
func (c *Component) Update(tick model.Tick) {
	c.begin(tick)
	c.powerIn, c.powerOut = 0, 0
}

// Apply passes powerKW through the element for the tick, prices the
// throughput and returns the power on the far side.
func (c *Component) Apply(powerKW float64, tick model.Tick) (float64, error) {
	powerKW = math.Max(0, powerKW)
	out := powerKW * c.Factor()
	c.powerIn += powerKW
	c.powerOut += out
	if !c.connected || powerKW == 0 {
		return out, nil
	}
	d := tick.Hours()
	c.throughputKWh += powerKW * d
	c.lossKWh += (powerKW - out) * d
	if _, err := c.acc.AddOperation(c.op, powerKW*d, tick.Time); err != nil {
		return out, fmt.Errorf("component %s: %w", c.id, err)
	}
	return out, nil
}

// Snapshot returns the flow state.
func (c *Component) Snapshot() model.State {
	return c.state("", map[string]float64{
		"efficiency":     c.cfg.Efficiency,
		"power_in_kw":    c.powerIn,
		"power_out_kw":   c.powerOut,
		"loss_kw":        c.powerIn - c.powerOut,
		"throughput_kwh": c.throughputKWh,
		"loss_kwh":       c.lossKWh,
	})
}
