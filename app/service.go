package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridsim/api"
	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/device"
	coremon "github.com/kilianp07/gridsim/core/monitoring"
	"github.com/kilianp07/gridsim/core/scenario"
	"github.com/kilianp07/gridsim/core/sensors"
	"github.com/kilianp07/gridsim/core/sim"
	"github.com/kilianp07/gridsim/core/telemetry"
	"github.com/kilianp07/gridsim/infra/logger"
	"github.com/kilianp07/gridsim/infra/metrics"
	inframon "github.com/kilianp07/gridsim/infra/monitoring"
	"github.com/kilianp07/gridsim/infra/mqtt"
	_ "github.com/kilianp07/gridsim/infra/store"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

// Service orchestrates the engine, its telemetry and the HTTP surfaces.
type Service struct {
	RunID  string
	Engine *sim.Engine

	cfg        *config.Config
	bus        *eventbus.TypedBus[sim.TickResult]
	dispatcher *telemetry.Dispatcher
	tickMetric *metrics.TickMetrics
	api        *api.Server
	log        logger.Logger
}

// New creates a Service from a validated configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Logging.Options()); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logg := logger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	start, err := cfg.Simulation.LocalStart()
	if err != nil {
		return nil, err
	}
	calc, err := cost.NewCalculator(cfg.Tariff)
	if err != nil {
		return nil, fmt.Errorf("tariff: %w", err)
	}
	wear, err := device.NewWearPolicy(cfg.Policy.Wear)
	if err != nil {
		return nil, fmt.Errorf("wear policy: %w", err)
	}
	alloc, err := sim.NewAllocator(cfg.Policy.Allocation)
	if err != nil {
		return nil, fmt.Errorf("allocation policy: %w", err)
	}
	grid, err := BuildGrid(cfg.Grid, calc, wear, cfg.Simulation.Seed)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	weatherCfg := cfg.Sensors.Weather
	if weatherCfg == (sensors.WeatherConfig{}) {
		weatherCfg = sensors.DefaultWeatherConfig()
	}
	seed := cfg.Simulation.Seed
	weather := sensors.NewWeather(weatherCfg, rand.New(rand.NewSource(seed)))
	collector, err := sensors.NewCollector(cfg.Sensors, rand.New(rand.NewSource(seed^0x5eed)), logger.New("sensors"))
	if err != nil {
		return nil, fmt.Errorf("sensors: %w", err)
	}

	var sc *scenario.Scenario
	if cfg.Scenario != "" {
		if sc, err = scenario.Load(cfg.Scenario); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher := telemetry.NewDispatcher(sink, cfg.Publish, logger.New("telemetry"))

	runID := uuid.NewString()
	bus := eventbus.NewTyped[sim.TickResult]()
	engine, err := sim.NewEngine(sim.Options{
		RunID:             runID,
		Start:             start,
		Tick:              cfg.Simulation.Tick,
		Ticks:             cfg.Simulation.Ticks,
		RealtimeScale:     cfg.Simulation.RealtimeScale,
		PublishEveryTicks: cfg.Simulation.PublishEveryTicks,
		LogEveryTicks:     cfg.Simulation.LogEveryTicks,
	}, grid, sim.Deps{
		Weather:   weather,
		Collector: collector,
		Allocator: alloc,
		Sink:      dispatcher,
		Bus:       bus,
		Scenario:  sc,
		Log:       logger.New("engine"),
	})
	if err != nil {
		_ = dispatcher.Close(context.Background())
		return nil, fmt.Errorf("engine: %w", err)
	}

	svc := &Service{
		RunID:      runID,
		Engine:     engine,
		cfg:        cfg,
		bus:        bus,
		dispatcher: dispatcher,
		log:        logg,
	}
	if cfg.Metrics.Address != "" {
		if svc.tickMetric, err = metrics.NewTickMetrics(prometheus.DefaultRegisterer); err != nil {
			_ = dispatcher.Close(context.Background())
			return nil, fmt.Errorf("tick metrics: %w", err)
		}
	}
	if cfg.API.Address != "" {
		svc.api = api.NewServer(calc, start.Location(), logger.New("api"))
	}
	return svc, nil
}

// buildSink assembles the configured sinks and, when a broker is set, the
// MQTT publisher.
func buildSink(cfg *config.Config) (telemetry.Sink, error) {
	sink, err := telemetry.NewSink(cfg.Sinks)
	if err != nil {
		return nil, fmt.Errorf("sinks: %w", err)
	}
	if cfg.MQTT.Broker == "" {
		return sink, nil
	}
	pub, err := mqtt.NewPublisher(cfg.MQTT)
	if err != nil {
		if c, ok := sink.(telemetry.Closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	if _, nop := sink.(telemetry.NopSink); nop {
		return pub, nil
	}
	return telemetry.NewMultiSink(sink, pub), nil
}

// Run starts the metrics and API servers, then runs the simulation until
// it completes or ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.tickMetric != nil {
		metrics.StartTickCollector(ctx, s.bus, s.tickMetric, s.dispatcher.Stats)
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.Address, prometheus.DefaultGatherer); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.api != nil {
		s.api.Follow(ctx, s.bus)
		go func() {
			if err := s.api.Start(ctx, s.cfg.API.Address, s.cfg.API.AllowedOrigins); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}

	err := s.Engine.Run(ctx)
	stats := s.dispatcher.Stats()
	s.log.Infow("run finished", map[string]any{
		"run_id":    s.RunID,
		"delivered": stats.Delivered,
		"dropped":   stats.Dropped,
		"failed":    stats.Failed,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		coremon.CaptureException(err, map[string]string{"module": "engine", "run_id": s.RunID})
		return err
	}
	return nil
}

// Close drains pending telemetry, closes the sinks and flushes error reports.
func (s *Service) Close(ctx context.Context) error {
	err := s.dispatcher.Close(ctx)
	s.bus.Close()
	coremon.Flush(2 * time.Second)
	return err
}
