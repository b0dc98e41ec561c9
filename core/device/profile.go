package device

import (
	"fmt"
	"math"
)

// Profile is a diurnal load curve: BaseKW outside the peak window, PeakKW
// inside it, and cosine ramps of TransitionH hours on either side. Windows
// may wrap past midnight.
type Profile struct {
	BaseKW      float64 `json:"base_kw"`
	PeakKW      float64 `json:"peak_kw"`
	PeakStart   float64 `json:"peak_start"`
	PeakEnd     float64 `json:"peak_end"`
	TransitionH float64 `json:"transition_h"`
}

// Validate reports configuration errors.
func (p Profile) Validate() error {
	switch {
	case p.BaseKW < 0 || p.PeakKW < 0:
		return fmt.Errorf("profile loads must not be negative")
	case p.PeakStart < 0 || p.PeakStart >= 24 || p.PeakEnd < 0 || p.PeakEnd > 24:
		return fmt.Errorf("profile peak window must be within [0,24]")
	case p.TransitionH < 0 || p.TransitionH > 6:
		return fmt.Errorf("profile transition_h must be within [0,6]")
	}
	return nil
}

// since returns how many hours h is past from, on a 24h circle.
func since(h, from float64) float64 {
	return math.Mod(math.Mod(h-from, 24)+24, 24)
}

// At returns the profile load at fractional hour h.
func (p Profile) At(h float64) float64 {
	width := since(p.PeakEnd, p.PeakStart)
	if since(h, p.PeakStart) < width {
		return p.PeakKW
	}
	if p.TransitionH > 0 {
		if d := since(h, p.PeakStart-p.TransitionH); d < p.TransitionH {
			return p.BaseKW + (p.PeakKW-p.BaseKW)*(0.5-0.5*math.Cos(math.Pi*d/p.TransitionH))
		}
		if d := since(h, p.PeakEnd); d < p.TransitionH {
			return p.PeakKW - (p.PeakKW-p.BaseKW)*(0.5-0.5*math.Cos(math.Pi*d/p.TransitionH))
		}
	}
	return p.BaseKW
}
