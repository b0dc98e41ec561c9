package device

import "fmt"

// WearPolicy returns the SoH loss in percentage points caused by moving
// throughputKWh through a battery of the given capacity.
type WearPolicy interface {
	Wear(throughputKWh, capacityKWh float64) float64
}

// NoWear keeps SoH constant.
type NoWear struct{}

func (NoWear) Wear(float64, float64) float64 { return 0 }

// ThroughputWear removes a fixed amount of SoH per kWh moved.
type ThroughputWear struct {
	PercentPerKWh float64
}

func (w ThroughputWear) Wear(kwh, _ float64) float64 { return w.PercentPerKWh * kwh }

// CycleWear removes a fixed amount of SoH per equivalent full cycle, so
// larger packs age slower for the same energy.
type CycleWear struct {
	PercentPerCycle float64
}

func (w CycleWear) Wear(kwh, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return w.PercentPerCycle * kwh / capacity
}

// WearConfig selects a wear policy from configuration.
type WearConfig struct {
	Type string  `json:"type"`
	Rate float64 `json:"rate"`
}

// NewWearPolicy builds the policy named by cfg.Type.
func NewWearPolicy(cfg WearConfig) (WearPolicy, error) {
	if cfg.Rate < 0 {
		return nil, fmt.Errorf("wear rate %g must not be negative", cfg.Rate)
	}
	switch cfg.Type {
	case "none":
		return NoWear{}, nil
	case "", "throughput":
		return ThroughputWear{PercentPerKWh: cfg.Rate}, nil
	case "cycle":
		return CycleWear{PercentPerCycle: cfg.Rate}, nil
	default:
		return nil, fmt.Errorf("unknown wear policy %q", cfg.Type)
	}
}
