package device

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/sensors"
)

// GeneratorConfig describes a generation source.
type GeneratorConfig struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	RatedKW float64 `json:"rated_kw"`
	// Inverter is the id of the inverter the source feeds, if any.
	Inverter string `json:"inverter,omitempty"`
	// RampKWPerH bounds the change of output between ticks. Zero disables it.
	RampKWPerH float64 `json:"ramp_kw_per_h"`

	// Solar.
	TempCoefficient float64 `json:"temp_coefficient_per_c"`
	NOCT            float64 `json:"noct_c"`

	// Wind.
	CutInMS             float64 `json:"cut_in_ms"`
	RatedSpeedMS        float64 `json:"rated_speed_ms"`
	CutOutMS            float64 `json:"cut_out_ms"`
	ShutdownAboveCutOut bool    `json:"shutdown_above_cut_out"`
}

// Validate reports configuration errors.
func (c GeneratorConfig) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("generator id is required"))
	}
	gt, err := model.ParseGenerationType(c.Type)
	if err != nil {
		errs = append(errs, fmt.Errorf("generator %s: %w", c.ID, err))
	}
	if gt != model.GenerationExternalGrid && c.RatedKW <= 0 {
		errs = append(errs, fmt.Errorf("generator %s: rated_kw must be positive", c.ID))
	}
	if c.RampKWPerH < 0 {
		errs = append(errs, fmt.Errorf("generator %s: ramp_kw_per_h must not be negative", c.ID))
	}
	if gt == model.GenerationWind {
		cutIn, rated, cutOut := c.windCurve()
		if !(cutIn >= 0 && cutIn < rated && rated < cutOut) {
			errs = append(errs, fmt.Errorf("generator %s: wind curve needs cut_in < rated_speed < cut_out", c.ID))
		}
	}
	return errors.Join(errs...)
}

func (c GeneratorConfig) windCurve() (cutIn, rated, cutOut float64) {
	cutIn, rated, cutOut = c.CutInMS, c.RatedSpeedMS, c.CutOutMS
	if cutIn == 0 {
		cutIn = 3
	}
	if rated == 0 {
		rated = 12
	}
	if cutOut == 0 {
		cutOut = 25
	}
	return cutIn, rated, cutOut
}

// Generator is a solar, wind or external grid source.
type Generator struct {
	base
	cfg    GeneratorConfig
	gtype  model.GenerationType
	output float64

	// external grid exchange of the latest tick
	importKW, exportKW       float64
	totalImport, totalExport float64
	lastQuote                cost.Quote
}

// NewGenerator validates cfg and returns the source.
func NewGenerator(cfg GeneratorConfig, calc *cost.Calculator) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gt, _ := model.ParseGenerationType(cfg.Type)
	if cfg.TempCoefficient == 0 {
		cfg.TempCoefficient = 0.004
	}
	if cfg.NOCT == 0 {
		cfg.NOCT = 45
	}
	return &Generator{base: newBase(cfg.ID, model.KindGeneration, string(gt), calc), cfg: cfg, gtype: gt}, nil
}

func (g *Generator) GenerationType() model.GenerationType { return g.gtype }
func (g *Generator) Inverter() string                     { return g.cfg.Inverter }
func (g *Generator) RatedKW() float64                     { return g.cfg.RatedKW }
func (g *Generator) OutputKW() float64                    { return g.output }

// IsExternal reports whether the source is the external grid.
func (g *Generator) IsExternal() bool { return g.gtype == model.GenerationExternalGrid }

// OperatingKW is the output for plants and the exchanged power for the
// external grid.
func (g *Generator) OperatingKW() float64 {
	if g.IsExternal() {
		return g.importKW + g.exportKW
	}
	return g.output
}

// Update starts a tick.
func (g *Generator) Update(tick model.Tick) {
	g.begin(tick)
	if g.IsExternal() {
		g.importKW, g.exportKW = 0, 0
		g.lastQuote = cost.Quote{}
	}
}

// Potential returns the unramped output for the conditions.
func (g *Generator) Potential(cond sensors.Conditions) float64 {
	switch g.gtype {
	case model.GenerationSolar:
		panelC := cond.AmbientC + cond.IrradianceWm2/800*(g.cfg.NOCT-20)
		derate := 1 - g.cfg.TempCoefficient*(panelC-25)
		factor := math.Min(1, math.Max(0, cond.IrradianceWm2/1000))
		return clampKW(g.cfg.RatedKW*factor*derate, g.cfg.RatedKW)
	case model.GenerationWind:
		return clampKW(g.cfg.RatedKW*WindPowerFraction(cond.WindSpeedMS, g.cfg), g.cfg.RatedKW)
	default:
		return 0
	}
}

// WindPowerFraction maps a wind speed to a fraction of rated output: zero
// below cut-in, cubic up to rated speed, then flat. Above cut-out the turbine
// stays at rated output unless ShutdownAboveCutOut is set.
func WindPowerFraction(speed float64, cfg GeneratorConfig) float64 {
	cutIn, rated, cutOut := cfg.windCurve()
	switch {
	case speed < cutIn:
		return 0
	case speed >= cutOut && cfg.ShutdownAboveCutOut:
		return 0
	case speed >= rated:
		return 1
	}
	return (math.Pow(speed, 3) - math.Pow(cutIn, 3)) / (math.Pow(rated, 3) - math.Pow(cutIn, 3))
}

// Generate computes the output for the tick from the environmental drivers
// and prices the produced energy. The external grid does not generate on its
// own; see Exchange.
func (g *Generator) Generate(cond sensors.Conditions, tick model.Tick) (float64, error) {
	if g.IsExternal() {
		return 0, nil
	}
	if !g.connected {
		g.output = 0
		return 0, nil
	}
	target := g.Potential(cond)
	if g.cfg.RampKWPerH > 0 {
		step := g.cfg.RampKWPerH * tick.Hours()
		target = g.output + math.Max(-step, math.Min(step, target-g.output))
	}
	g.output = clampKW(target, g.cfg.RatedKW)

	op := cost.OpSolarGeneration
	if g.gtype == model.GenerationWind {
		op = cost.OpWindGeneration
	}
	if _, err := g.acc.AddOperation(op, g.output*tick.Hours(), tick.Time); err != nil {
		return g.output, fmt.Errorf("generator %s: %w", g.id, err)
	}
	return g.output, nil
}

// Exchange records the external grid exchange for the tick. Positive netKW
// is an import and is priced; an export is only tracked.
func (g *Generator) Exchange(netKW float64, tick model.Tick) (cost.Quote, error) {
	if !g.IsExternal() {
		return cost.Quote{}, fmt.Errorf("generator %s is not an external grid", g.id)
	}
	d := tick.Hours()
	g.importKW, g.exportKW = 0, 0
	if netKW > 0 {
		g.importKW = netKW
	} else {
		g.exportKW = -netKW
	}
	g.totalImport += g.importKW * d
	g.totalExport += g.exportKW * d
	q, err := g.acc.AddOperation(cost.OpExternalGrid, g.importKW*d, tick.Time)
	if err != nil {
		return cost.Quote{}, fmt.Errorf("generator %s: %w", g.id, err)
	}
	g.lastQuote = q
	return q, nil
}

// Snapshot returns the output state.
func (g *Generator) Snapshot() model.State {
	values := map[string]float64{
		"current_output_kw": g.output,
		"rated_capacity_kw": g.cfg.RatedKW,
	}
	if g.IsExternal() {
		values = map[string]float64{
			"import_kw":           g.importKW,
			"export_kw":           g.exportKW,
			"total_import_kwh":    g.totalImport,
			"total_export_kwh":    g.totalExport,
			"current_output_kw":   g.importKW - g.exportKW,
			"current_import_cost": g.lastQuote.Cost,
			"base_cost_per_kwh":   g.lastQuote.BaseRate,
		}
	} else if g.cfg.RatedKW > 0 {
		values["capacity_factor"] = g.output / g.cfg.RatedKW
	}
	return g.state("", values)
}

func clampKW(v, limit float64) float64 { return math.Max(0, math.Min(limit, v)) }
