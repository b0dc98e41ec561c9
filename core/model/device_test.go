package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypes(t *testing.T) {
	role, err := ParseBatteryRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleGrid, role)

	_, err = ParseGenerationType("nuclear")
	assert.Error(t, err)
	gt, err := ParseGenerationType("wind")
	require.NoError(t, err)
	assert.Equal(t, GenerationWind, gt)

	ct, err := ParseConsumerType("ev_charging")
	require.NoError(t, err)
	assert.Equal(t, ConsumerEVCharging, ct)

	_, err = ParseComponentType("breaker")
	assert.Error(t, err)
}

func TestStateTopic(t *testing.T) {
	assert.Equal(t, "batteries/bess-1/state", StateTopic(KindBattery, "bess-1"))
	assert.Equal(t, "grid/tx-1/state", StateTopic(KindGridComponent, "tx-1"))
	assert.Equal(t, "consumers/house-1/state", StateTopic(KindConsumer, "house-1"))
}

func TestFormatSimTime(t *testing.T) {
	ts := time.Date(2025, 10, 4, 6, 15, 0, 0, time.UTC)
	assert.Equal(t, "2025-10-04T06:15:00.000Z", FormatSimTime(ts))
	assert.InDelta(t, 6.25, HourOfDay(ts), 1e-9)
}

func TestNewRecord(t *testing.T) {
	ts := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)
	tick := Tick{Index: 4, Time: ts, Duration: 15 * time.Minute}
	st := State{DeviceID: "pv-1", Kind: KindGeneration, Type: "solar", Connected: true, Values: map[string]float64{"current_output_kw": 12}}
	rec := NewRecord("run", tick, st, CostTotals{TotalOperationCost: 3, Currency: "INR"})
	assert.Equal(t, "generation", rec.DeviceKind)
	assert.Equal(t, "2025-06-01T19:00:00.000Z", rec.SimulatedTime)
	assert.Equal(t, int64(4), rec.Tick)
	assert.Equal(t, ts, rec.Time)
	assert.InDelta(t, 0.25, tick.Hours(), 1e-12)
	assert.InDelta(t, 3.0, rec.Cost.Total(), 1e-12)
}
