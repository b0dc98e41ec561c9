// Package api serves the latest simulation state over HTTP.
package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/kilianp07/gridsim/core/cost"
	"github.com/kilianp07/gridsim/core/logger"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/sim"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

// Server keeps the latest tick and device records and answers queries on them.
type Server struct {
	calc   *cost.Calculator
	loc    *time.Location
	log    logger.Logger
	router *gin.Engine

	mu      sync.RWMutex
	last    *sim.TickResult
	devices map[string]model.Record
}

// NewServer returns a server quoting prices with calc. Quote times are
// converted to loc, the zone of the simulated clock; nil means UTC.
func NewServer(calc *cost.Calculator, loc *time.Location, log logger.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		calc:    calc,
		loc:     loc,
		log:     log,
		router:  gin.New(),
		devices: make(map[string]model.Record),
	}
	s.router.Use(gin.Recovery(), s.requestLog)
	s.router.GET("/healthz", s.Health)
	v1 := s.router.Group("/api/v1")
	v1.GET("/balance", s.Balance)
	v1.GET("/devices", s.Devices)
	v1.GET("/devices/:id", s.Device)
	v1.GET("/quote", s.Quote)
	return s
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debugw("api request", map[string]any{
		"method":   c.Request.Method,
		"path":     c.FullPath(),
		"status":   c.Writer.Status(),
		"duration": time.Since(start).String(),
	})
}

// Handler returns the router wrapped in a CORS policy allowing GET from
// origins. An empty list allows every origin.
func (s *Server) Handler(origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}).Handler(s.router)
}

// Observe stores res as the latest tick.
func (s *Server) Observe(res sim.TickResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &res
	for _, rec := range res.Records {
		s.devices[rec.DeviceID] = rec
	}
}

// Follow feeds every tick published on bus into the server until ctx ends.
func (s *Server) Follow(ctx context.Context, bus *eventbus.TypedBus[sim.TickResult]) {
	sub := bus.SubscribeBuffered(16)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-sub:
				if !ok {
					return
				}
				s.Observe(res)
			}
		}
	}()
}

// Start serves the API on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string, origins []string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(origins), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("serving status api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Health(c *gin.Context) {
	s.mu.RLock()
	body := gin.H{"status": "ok"}
	if s.last != nil {
		body["tick"] = s.last.Index
		body["simulated_time"] = s.last.Time
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, body)
}

// Balance returns the energy balance of the latest tick.
func (s *Server) Balance(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no tick resolved yet"})
		return
	}
	c.JSON(http.StatusOK, s.last)
}

// Devices lists the latest record of every device, optionally filtered by
// the kind query parameter.
func (s *Server) Devices(c *gin.Context) {
	kind := c.Query("kind")
	s.mu.RLock()
	out := make([]model.Record, 0, len(s.devices))
	for _, rec := range s.devices {
		if kind != "" && rec.DeviceKind != kind {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	c.JSON(http.StatusOK, out)
}

func (s *Server) Device(c *gin.Context) {
	id := c.Param("id")
	s.mu.RLock()
	rec, ok := s.devices[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device " + id})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Quote prices energy_kwh of an operation at time, which defaults to the
// latest simulated instant.
func (s *Server) Quote(c *gin.Context) {
	op, err := cost.ParseOperation(c.Query("operation"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	energy := 1.0
	if v := c.Query("energy_kwh"); v != "" {
		energy, err = strconv.ParseFloat(v, 64)
		if err != nil || energy < 0 || math.IsNaN(energy) || math.IsInf(energy, 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "energy_kwh must be a non-negative number"})
			return
		}
	}
	at, err := s.quoteTime(c.Query("time"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := s.calc.Quote(op, energy, at)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) quoteTime(v string) (time.Time, error) {
	if v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, errors.New("time must be RFC3339")
		}
		return t.In(s.loc), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last != nil {
		return s.last.Tick.Time.In(s.loc), nil
	}
	return time.Now().In(s.loc), nil
}
