package cost

import (
	"fmt"
	"time"

	"github.com/kilianp07/gridsim/core/model"
)

// Totals is the accumulated cost snapshot of a device.
type Totals = model.CostTotals

// Quote is the priced result of one energy delta.
type Quote struct {
	Operation          Operation `json:"operation"`
	EnergyKWh          float64   `json:"energy_kwh"`
	BaseRate           float64   `json:"base_rate"`
	Band               string    `json:"band"`
	Season             string    `json:"season"`
	TimeMultiplier     float64   `json:"time_multiplier"`
	SeasonalMultiplier float64   `json:"seasonal_multiplier"`
	FinalRate          float64   `json:"final_cost_per_kwh"`
	Cost               float64   `json:"cost"`
	Currency           string    `json:"currency"`
}

// Calculator prices energy deltas against a validated tariff. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	tariff   Tariff
	byMinute [minutesPerDay]int
	byMonth  [13]int
}

// NewCalculator validates the tariff and precomputes its lookup tables.
func NewCalculator(t Tariff) (*Calculator, error) {
	byMinute, byMonth, err := t.compile()
	if err != nil {
		return nil, err
	}
	rates := make(map[Operation]float64, len(t.Rates))
	for k, v := range t.Rates {
		rates[k] = v
	}
	t.Rates = rates
	return &Calculator{tariff: t, byMinute: byMinute, byMonth: byMonth}, nil
}

// Currency returns the tariff currency code.
func (c *Calculator) Currency() string { return c.tariff.Currency }

// Rate returns the base rate of op.
func (c *Calculator) Rate(op Operation) (float64, error) {
	r, ok := c.tariff.Rates[op]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return r, nil
}

// TimeMultiplier returns the time-of-day band and multiplier in effect at t.
func (c *Calculator) TimeMultiplier(t time.Time) (string, float64) {
	b := c.tariff.TimeBands[c.byMinute[t.Hour()*60+t.Minute()]]
	return b.Name, b.Multiplier
}

// SeasonalMultiplier returns the season and multiplier in effect at t.
func (c *Calculator) SeasonalMultiplier(t time.Time) (string, float64) {
	s := c.tariff.Seasons[c.byMonth[int(t.Month())]]
	return s.Name, s.Multiplier
}

// Quote prices energyKWh of op at simulated time t:
// cost = base rate × energy × time multiplier × seasonal multiplier.
func (c *Calculator) Quote(op Operation, energyKWh float64, t time.Time) (Quote, error) {
	rate, err := c.Rate(op)
	if err != nil {
		return Quote{}, err
	}
	band, tm := c.TimeMultiplier(t)
	season, sm := c.SeasonalMultiplier(t)
	final := rate * tm * sm
	return Quote{
		Operation:          op,
		EnergyKWh:          energyKWh,
		BaseRate:           rate,
		Band:               band,
		Season:             season,
		TimeMultiplier:     tm,
		SeasonalMultiplier: sm,
		FinalRate:          final,
		Cost:               rate * energyKWh * tm * sm,
		Currency:           c.tariff.Currency,
	}, nil
}
