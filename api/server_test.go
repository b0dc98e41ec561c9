package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/sim"
	"github.com/kilianp07/gridsim/infra/logger"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	calc, err := cost.NewCalculator(cost.DefaultTariff())
	require.NoError(t, err)
	return NewServer(calc, time.UTC, logger.NopLogger{})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func sampleTick() sim.TickResult {
	ts := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	tick := model.Tick{Index: 4, Time: ts, Duration: 15 * time.Minute}
	rec := func(id string, kind model.DeviceKind) model.Record {
		return model.NewRecord("run", tick, model.State{DeviceID: id, Kind: kind, Connected: true, Values: map[string]float64{"power_kw": 1}}, model.CostTotals{Currency: "INR"})
	}
	return sim.TickResult{
		Tick:          tick,
		Index:         tick.Index,
		Time:          model.FormatSimTime(ts),
		ConsumptionKW: 12,
		ImportKW:      3,
		Records:       []model.Record{rec("house-1", model.KindConsumer), rec("bess-1", model.KindBattery)},
	}
}

func TestBalanceBeforeFirstTick(t *testing.T) {
	s := newServer(t)
	rr := get(t, s.Handler(nil), "/api/v1/balance")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = get(t, s.Handler(nil), "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestBalanceAndDevices(t *testing.T) {
	s := newServer(t)
	s.Observe(sampleTick())
	h := s.Handler(nil)

	rr := get(t, h, "/api/v1/balance")
	require.Equal(t, http.StatusOK, rr.Code)
	var bal map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bal))
	assert.Equal(t, 12.0, bal["consumption_kw"])
	assert.Equal(t, 3.0, bal["import_kw"])
	assert.Equal(t, "2024-06-01T19:00:00.000Z", bal["simulated_time"])

	rr = get(t, h, "/api/v1/devices")
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []model.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "bess-1", recs[0].DeviceID)
	assert.Equal(t, "house-1", recs[1].DeviceID)

	rr = get(t, h, "/api/v1/devices?kind="+model.KindBattery.String())
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "bess-1", recs[0].DeviceID)

	rr = get(t, h, "/api/v1/devices/house-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec model.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, int64(4), rec.Tick)

	rr = get(t, h, "/api/v1/devices/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQuote(t *testing.T) {
	s := newServer(t)
	h := s.Handler(nil)

	rr := get(t, h, "/api/v1/quote?operation=house_consumption&energy_kwh=2&time=2024-06-01T19:00:00Z")
	require.Equal(t, http.StatusOK, rr.Code)
	var q cost.Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	assert.Equal(t, "peak", q.Band)
	assert.Equal(t, "summer", q.Season)
	assert.InDelta(t, 7.5*2*1.5*1.2, q.Cost, 1e-9)
	assert.Equal(t, "INR", q.Currency)

	s.Observe(sampleTick())
	rr = get(t, h, "/api/v1/quote?operation=external_grid")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	assert.Equal(t, "peak", q.Band)
	assert.Equal(t, 1.0, q.EnergyKWh)

	for _, target := range []string{
		"/api/v1/quote?operation=teleport",
		"/api/v1/quote?operation=ev_charging&energy_kwh=-1",
		"/api/v1/quote?operation=ev_charging&energy_kwh=NaN",
		"/api/v1/quote?operation=ev_charging&energy_kwh=Inf",
		"/api/v1/quote?operation=ev_charging&time=yesterday",
	} {
		if rr := get(t, h, target); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestQuoteUsesSimulationZone(t *testing.T) {
	calc, err := cost.NewCalculator(cost.DefaultTariff())
	require.NoError(t, err)
	ist := time.FixedZone("IST", 5*3600+1800)
	h := NewServer(calc, ist, logger.NopLogger{}).Handler(nil)

	// 13:30 UTC is 19:00 in the simulated zone.
	rr := get(t, h, "/api/v1/quote?operation=house_consumption&time=2024-06-01T13:30:00Z")
	require.Equal(t, http.StatusOK, rr.Code)
	var q cost.Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	assert.Equal(t, "peak", q.Band)
}

func TestCORS(t *testing.T) {
	s := newServer(t)
	h := s.Handler([]string{"http://dashboard.local"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "http://dashboard.local", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestFollowBus(t *testing.T) {
	s := newServer(t)
	bus := eventbus.NewTyped[sim.TickResult]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Follow(ctx, bus)

	require.Eventually(t, func() bool {
		bus.Publish(sampleTick())
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.last != nil
	}, time.Second, 10*time.Millisecond)
	rr := get(t, s.Handler(nil), "/api/v1/devices/bess-1")
	assert.Equal(t, http.StatusOK, rr.Code)
}
