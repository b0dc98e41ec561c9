package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/device"
	"github.com/kilianp07/gridsim/core/factory"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/infra/store"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation.Ticks = 8
	cfg.Logging.Level = "error"
	path := filepath.Join(t.TempDir(), "records.jsonl")
	cfg.Sinks = []factory.ModuleConfig{{Type: "jsonl", Conf: map[string]any{"path": path}}}
	return cfg, path
}

func TestServiceRunPersistsRecords(t *testing.T) {
	cfg, path := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svc.Run(ctx))
	require.NoError(t, svc.Close(ctx))
	assert.Equal(t, cfg.Simulation.Start.Add(8*cfg.Simulation.Tick), svc.Engine.Now())

	st, err := store.NewJSONLStore(path, 10, 0, 0)
	require.NoError(t, err)
	defer st.Close()
	entries, err := st.Query(ctx, store.Query{RunID: svc.RunID, DeviceID: "bess-1"})
	require.NoError(t, err)
	require.Len(t, entries, 8)
	assert.Equal(t, model.StateTopic(model.KindBattery, "bess-1"), entries[0].Topic)
	assert.Equal(t, int64(1), entries[0].Record.Tick)

	balance, err := st.Query(ctx, store.Query{RunID: svc.RunID, Topic: model.BalanceTopic})
	require.NoError(t, err)
	assert.Len(t, balance, 8)
}

func TestServiceRejectsBadScenario(t *testing.T) {
	cfg, _ := testConfig(t)
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events:\n  - {action: explode, device: bess-1, at_tick: 1}\n"), 0o644))
	cfg.Scenario = path
	_, err := New(cfg)
	assert.ErrorContains(t, err, "scenario")
}

func TestServiceRejectsUnknownSink(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Sinks = []factory.ModuleConfig{{Type: "carrier-pigeon"}}
	_, err := New(cfg)
	assert.ErrorContains(t, err, "sinks")
}

func TestBuildGridSeedsConsumersIndependently(t *testing.T) {
	cfg := config.Default()
	calc, err := cost.NewCalculator(cfg.Tariff)
	require.NoError(t, err)

	demand := func(consumers []device.ConsumerConfig) float64 {
		grid, err := BuildGrid(config.GridConfig{Consumers: consumers}, calc, device.NoWear{}, 42)
		require.NoError(t, err)
		tick := model.Tick{Index: 1, Time: cfg.Simulation.Start.Add(19 * time.Hour), Duration: 15 * time.Minute}
		c := grid.Consumers[0]
		c.Update(tick)
		p, err := c.Demand(tick)
		require.NoError(t, err)
		return p
	}
	all := cfg.Grid.Consumers
	assert.Equal(t, demand(all), demand(all[:1]))
}

func TestBuildGridReportsEveryInvalidDevice(t *testing.T) {
	cfg := config.Default()
	calc, err := cost.NewCalculator(cfg.Tariff)
	require.NoError(t, err)
	cfg.Grid.Batteries[0].CapacityKWh = 0
	cfg.Grid.Components[0].Efficiency = 2
	_, err = BuildGrid(cfg.Grid, calc, nil, 1)
	assert.ErrorContains(t, err, "battery bess-1")
	assert.ErrorContains(t, err, "component inv-1")
}
