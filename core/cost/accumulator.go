package cost

import (
	"fmt"
	"time"
)

type category int

const (
	catCharging category = iota
	catDischarging
	catStorage
	catOperation
)

// Accumulator keeps the running cost totals of one device. Totals only
// grow; the current operation cost holds the latest tick's delta.
type Accumulator struct {
	calc   *Calculator
	totals Totals
}

// NewAccumulator returns an accumulator pricing against calc.
func NewAccumulator(calc *Calculator) *Accumulator {
	return &Accumulator{calc: calc, totals: Totals{Currency: calc.Currency()}}
}

// ResetTick clears the per-tick delta. The engine calls it before a device
// takes part in a new tick.
func (a *Accumulator) ResetTick() { a.totals.CurrentOperationCost = 0 }

// AddCharging prices a charging delta.
func (a *Accumulator) AddCharging(op Operation, kwh float64, t time.Time) (Quote, error) {
	return a.add(catCharging, op, kwh, t)
}

// AddDischarging prices a discharging delta.
func (a *Accumulator) AddDischarging(op Operation, kwh float64, t time.Time) (Quote, error) {
	return a.add(catDischarging, op, kwh, t)
}

// AddStorage prices a holding cost on kWh-hours of stored energy.
func (a *Accumulator) AddStorage(op Operation, kwhHours float64, t time.Time) (Quote, error) {
	return a.add(catStorage, op, kwhHours, t)
}

// AddOperation prices generation, consumption or transfer energy.
func (a *Accumulator) AddOperation(op Operation, kwh float64, t time.Time) (Quote, error) {
	return a.add(catOperation, op, kwh, t)
}

func (a *Accumulator) add(c category, op Operation, kwh float64, t time.Time) (Quote, error) {
	if kwh < 0 {
		return Quote{}, fmt.Errorf("negative energy %.6f for %s", kwh, op)
	}
	q, err := a.calc.Quote(op, kwh, t)
	if err != nil {
		return Quote{}, err
	}
	switch c {
	case catCharging:
		a.totals.TotalChargingCost += q.Cost
	case catDischarging:
		a.totals.TotalDischargingCost += q.Cost
	case catStorage:
		a.totals.TotalStorageCost += q.Cost
	default:
		a.totals.TotalOperationCost += q.Cost
	}
	a.totals.CurrentOperationCost += q.Cost
	a.totals.TimeMultiplier = q.TimeMultiplier
	a.totals.SeasonalMultiplier = q.SeasonalMultiplier
	a.totals.FinalCostPerKWh = q.FinalRate
	return q, nil
}

// Snapshot returns a copy of the totals.
func (a *Accumulator) Snapshot() Totals { return a.totals }
