package sim

import (
	"github.com/kilianp07/gridsim/core/model"
)

// TickResult summarises one resolved tick. Power figures are averages over
// the tick in kW.
type TickResult struct {
	Tick model.Tick `json:"-"`
	// Index and Time mirror Tick for JSON consumers.
	Index int64  `json:"tick"`
	Time  string `json:"simulated_time"`

	GenerationKW  float64 `json:"generation_kw"`
	DeliveredKW   float64 `json:"delivered_generation_kw"`
	LossKW        float64 `json:"loss_kw"`
	ConsumptionKW float64 `json:"consumption_kw"`
	ChargeKW      float64 `json:"charge_kw"`
	DischargeKW   float64 `json:"discharge_kw"`
	ImportKW      float64 `json:"import_kw"`
	ExportKW      float64 `json:"export_kw"`
	// Residual is the energy balance closure error in kW.
	Residual float64 `json:"residual_kw"`

	ExternalCost      float64 `json:"external_grid_cost"`
	TotalExternalCost float64 `json:"total_external_grid_cost"`
	Currency          string  `json:"currency"`

	// UnmetDemand is set when storage could not cover a deficit.
	UnmetDemand bool `json:"unmet_demand"`
	// UnabsorbedSurplus is set when storage could not take a surplus.
	UnabsorbedSurplus bool `json:"unabsorbed_surplus"`

	Published        bool   `json:"published"`
	PublishErrors    uint64 `json:"publish_errors"`
	SensorDeviations int64  `json:"sensor_deviations"`

	Records []model.Record `json:"-"`
}

// BalanceValues is the state map of the grid/balance record.
func (r TickResult) BalanceValues() map[string]float64 {
	flag := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	return map[string]float64{
		"generation_kw":           r.GenerationKW,
		"delivered_generation_kw": r.DeliveredKW,
		"loss_kw":                 r.LossKW,
		"consumption_kw":          r.ConsumptionKW,
		"charge_kw":               r.ChargeKW,
		"discharge_kw":            r.DischargeKW,
		"import_kw":               r.ImportKW,
		"export_kw":               r.ExportKW,
		"external_grid_cost":      r.ExternalCost,
		"residual_kw":             r.Residual,
		"unmet_demand":            flag(r.UnmetDemand),
		"unabsorbed_surplus":      flag(r.UnabsorbedSurplus),
	}
}
