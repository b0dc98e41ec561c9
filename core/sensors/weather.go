package sensors

import (
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/gridsim/core/model"
)

// WeatherConfig tunes the synthetic weather driver.
type WeatherConfig struct {
	BaseIrradiance  float64 `json:"base_irradiance"`
	BaseWindSpeedMS float64 `json:"base_wind_speed_ms"`
	BaseAmbientC    float64 `json:"base_ambient_c"`
	// Persistence is the weight kept from the previous wind speed, in [0,1).
	Persistence float64 `json:"persistence"`
	// InitialCloudCover is the starting cloud cover in percent.
	InitialCloudCover float64 `json:"initial_cloud_cover"`
}

// DefaultWeatherConfig returns a temperate site.
func DefaultWeatherConfig() WeatherConfig {
	return WeatherConfig{
		BaseIrradiance:    1000,
		BaseWindSpeedMS:   6,
		BaseAmbientC:      25,
		Persistence:       0.8,
		InitialCloudCover: 30,
	}
}

// Conditions are the environmental drivers for one tick. They are shared by
// generation output and by the environmental sensor fields.
type Conditions struct {
	Time             time.Time
	IrradianceWm2    float64
	AmbientC         float64
	WindSpeedMS      float64
	CloudCoverPct    float64
	HumidityPct      float64
	PressureHPa      float64
	PrecipitationMMH float64
	VisibilityKM     float64
}

// Weather carries the slowly varying cloud cover and wind speed across ticks.
type Weather struct {
	cfg   WeatherConfig
	rng   *rand.Rand
	cloud float64
	wind  float64
}

// NewWeather returns a weather driver seeded by rng.
func NewWeather(cfg WeatherConfig, rng *rand.Rand) *Weather {
	if cfg.Persistence < 0 || cfg.Persistence >= 1 {
		cfg.Persistence = 0.8
	}
	return &Weather{
		cfg:   cfg,
		rng:   rng,
		cloud: clamp(cfg.InitialCloudCover, 0, 100),
		wind:  math.Max(0, cfg.BaseWindSpeedMS),
	}
}

func (w *Weather) uniform(lo, hi float64) float64 { return lo + w.rng.Float64()*(hi-lo) }

func seasonal(t time.Time) float64 {
	return math.Cos(2 * math.Pi * float64(t.YearDay()-172) / 365)
}

// Advance moves the weather to t and returns the conditions for that tick.
func (w *Weather) Advance(t time.Time) Conditions {
	h := model.HourOfDay(t)

	w.cloud = clamp(w.cloud+w.uniform(-5, 5), 0, 100)

	target := w.cfg.BaseWindSpeedMS * (1 + 0.4*math.Sin(2*math.Pi*h/24)) * w.uniform(0.7, 1.3)
	w.wind = clamp(w.cfg.Persistence*w.wind+(1-w.cfg.Persistence)*target, 0, 40)

	var irr float64
	if h >= 6 && h < 18 {
		elevation := math.Sin(math.Pi * (h - 6) / 12)
		irr = w.cfg.BaseIrradiance * elevation * (1 + 0.15*seasonal(t)) *
			(1 - 0.7*w.cloud/100) * w.uniform(0.95, 1.05)
	}

	ambient := w.cfg.BaseAmbientC + 6*math.Sin(2*math.Pi*(h-9)/24) + 8*seasonal(t) - 0.03*w.cloud
	humidity := clamp(60-1.2*(ambient-w.cfg.BaseAmbientC)+0.2*(w.cloud-50), 0, 100)
	pressure := 1013.25 + 3*math.Sin(2*math.Pi*h/24) - 0.1*(w.cloud-50)

	var precip float64
	switch {
	case w.cloud > 80:
		precip = (w.cloud - 80) / 20 * 8
	case w.cloud > 50:
		precip = (w.cloud - 50) / 30 * 1.5
	}
	visibility := math.Max(0.1, 10*(1-precip/20)*(1-(humidity-50)/200))

	return Conditions{
		Time:             t,
		IrradianceWm2:    math.Max(0, irr),
		AmbientC:         ambient,
		WindSpeedMS:      w.wind,
		CloudCoverPct:    w.cloud,
		HumidityPct:      humidity,
		PressureHPa:      pressure,
		PrecipitationMMH: precip,
		VisibilityKM:     visibility,
	}
}

func clamp(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }
