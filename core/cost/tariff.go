package cost

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operation identifies the rate applied to an energy delta.
type Operation string

const (
	OpBatteryCharging     Operation = "battery_charging"
	OpBatteryDischarging  Operation = "battery_discharging"
	OpBatteryStorage      Operation = "battery_storage"
	OpSolarGeneration     Operation = "solar_generation"
	OpWindGeneration      Operation = "wind_generation"
	OpExternalGrid        Operation = "external_grid"
	OpTransmission        Operation = "transmission"
	OpDistribution        Operation = "distribution"
	OpSubstation          Operation = "substation"
	OpHouseConsumption    Operation = "house_consumption"
	OpIndustryConsumption Operation = "industry_consumption"
	OpEVCharging          Operation = "ev_charging"
)

// Operations lists every operation a tariff must price.
func Operations() []Operation {
	return []Operation{
		OpBatteryCharging, OpBatteryDischarging, OpBatteryStorage,
		OpSolarGeneration, OpWindGeneration, OpExternalGrid,
		OpTransmission, OpDistribution, OpSubstation,
		OpHouseConsumption, OpIndustryConsumption, OpEVCharging,
	}
}

// ParseOperation returns the operation named s.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations() {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

var (
	ErrInvalidTariff    = errors.New("invalid tariff")
	ErrUnknownOperation = errors.New("unknown operation")
)

const minutesPerDay = 24 * 60

// TimeBand is a half-open [Start, End) time-of-day window. A band whose end
// is not after its start wraps past midnight.
type TimeBand struct {
	Name       string  `json:"name"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Multiplier float64 `json:"multiplier"`
}

// Season groups calendar months under one multiplier.
type Season struct {
	Name       string  `json:"name"`
	Months     []int   `json:"months"`
	Multiplier float64 `json:"multiplier"`
}

// Tariff is the full pricing configuration.
type Tariff struct {
	Currency  string               `json:"currency"`
	Rates     map[Operation]float64 `json:"rates"`
	TimeBands []TimeBand           `json:"time_bands"`
	Seasons   []Season             `json:"seasons"`
}

// parseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted
// as an alias for midnight so bands can end at the end of the day.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("time %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return (h*60 + m) % minutesPerDay, nil
}

type compiledBand struct {
	name       string
	start, end int
	multiplier float64
}

func (b compiledBand) contains(minute int) bool {
	if b.start < b.end {
		return minute >= b.start && minute < b.end
	}
	return minute >= b.start || minute < b.end
}

// Validate checks rates, multipliers and that the bands partition the day
// and the year without gaps or overlaps.
func (t Tariff) Validate() error {
	_, _, err := t.compile()
	return err
}

func (t Tariff) compile() ([minutesPerDay]int, [13]int, error) {
	var (
		byMinute [minutesPerDay]int
		byMonth  [13]int
		errs     []error
	)
	if t.Currency == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	for _, op := range Operations() {
		r, ok := t.Rates[op]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("missing rate for %s", op))
		case r < 0:
			errs = append(errs, fmt.Errorf("negative rate for %s", op))
		}
	}
	for op := range t.Rates {
		if _, err := ParseOperation(string(op)); err != nil {
			errs = append(errs, err)
		}
	}

	if len(t.TimeBands) == 0 {
		errs = append(errs, errors.New("no time bands"))
	}
	for i := range byMinute {
		byMinute[i] = -1
	}
	for i, b := range t.TimeBands {
		if b.Multiplier <= 0 {
			errs = append(errs, fmt.Errorf("band %q: multiplier must be positive", b.Name))
		}
		start, err := parseClock(b.Start)
		if err != nil {
			errs = append(errs, fmt.Errorf("band %q: %w", b.Name, err))
			continue
		}
		end, err := parseClock(b.End)
		if err != nil {
			errs = append(errs, fmt.Errorf("band %q: %w", b.Name, err))
			continue
		}
		cb := compiledBand{name: b.Name, start: start, end: end}
		for m := 0; m < minutesPerDay; m++ {
			if !cb.contains(m) {
				continue
			}
			if byMinute[m] >= 0 {
				errs = append(errs, fmt.Errorf("band %q overlaps %q at %02d:%02d",
					b.Name, t.TimeBands[byMinute[m]].Name, m/60, m%60))
				break
			}
			byMinute[m] = i
		}
	}
	if len(t.TimeBands) > 0 {
		for m, idx := range byMinute {
			if idx < 0 {
				errs = append(errs, fmt.Errorf("no time band covers %02d:%02d", m/60, m%60))
				break
			}
		}
	}

	if len(t.Seasons) == 0 {
		errs = append(errs, errors.New("no seasons"))
	}
	for i := range byMonth {
		byMonth[i] = -1
	}
	for i, s := range t.Seasons {
		if s.Multiplier <= 0 {
			errs = append(errs, fmt.Errorf("season %q: multiplier must be positive", s.Name))
		}
		for _, m := range s.Months {
			if m < 1 || m > 12 {
				errs = append(errs, fmt.Errorf("season %q: month %d out of range", s.Name, m))
				continue
			}
			if byMonth[m] >= 0 {
				errs = append(errs, fmt.Errorf("season %q overlaps %q in %s",
					s.Name, t.Seasons[byMonth[m]].Name, time.Month(m)))
				continue
			}
			byMonth[m] = i
		}
	}
	if len(t.Seasons) > 0 {
		for m := 1; m <= 12; m++ {
			if byMonth[m] < 0 {
				errs = append(errs, fmt.Errorf("no season covers %s", time.Month(m)))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return byMinute, byMonth, fmt.Errorf("%w: %w", ErrInvalidTariff, err)
	}
	return byMinute, byMonth, nil
}

// DefaultTariff returns the tariff used by standalone runs and tests.
func DefaultTariff() Tariff {
	return Tariff{
		Currency: "INR",
		Rates: map[Operation]float64{
			OpBatteryCharging:     6.50,
			OpBatteryDischarging:  7.00,
			OpBatteryStorage:      0.10,
			OpSolarGeneration:     3.50,
			OpWindGeneration:      4.00,
			OpExternalGrid:        8.50,
			OpTransmission:        0.50,
			OpDistribution:        0.75,
			OpSubstation:          0.25,
			OpHouseConsumption:    7.50,
			OpIndustryConsumption: 9.00,
			OpEVCharging:          12.00,
		},
		TimeBands: []TimeBand{
			{Name: "off_peak", Start: "22:00", End: "06:00", Multiplier: 0.7},
			{Name: "normal", Start: "06:00", End: "18:00", Multiplier: 1.0},
			{Name: "peak", Start: "18:00", End: "22:00", Multiplier: 1.5},
		},
		Seasons: []Season{
			{Name: "summer", Months: []int{4, 5, 6, 7, 8, 9}, Multiplier: 1.2},
			{Name: "winter", Months: []int{10, 11, 12, 1, 2, 3}, Multiplier: 0.9},
		},
	}
}
