package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/gridsim/core/logger"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/monitoring"
)

// DispatcherConfig tunes the asynchronous publish queue.
type DispatcherConfig struct {
	QueueSize int           `json:"queue_size"`
	Timeout   time.Duration `json:"timeout"`
	Retries   int           `json:"retries"`
	Backoff   time.Duration `json:"backoff"`
}

// DefaultDispatcherConfig returns the queue settings used when none are set.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{QueueSize: 1024, Timeout: 2 * time.Second, Retries: 2, Backoff: 100 * time.Millisecond}
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	d := DefaultDispatcherConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// DispatchStats counts what happened to published records.
type DispatchStats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

type item struct {
	topic string
	rec   model.Record
}

// Dispatcher is a Sink that queues records and delivers them to the wrapped
// sink from a single worker goroutine. Publish never blocks.
type Dispatcher struct {
	sink Sink
	cfg  DispatcherConfig
	log  logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan item
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher starts the delivery worker for sink.
func NewDispatcher(sink Sink, cfg DispatcherConfig, log logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:   sink,
		cfg:    cfg,
		log:    log,
		queue:  make(chan item, cfg.QueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go d.run()
	return d
}

// Publish enqueues the record. It fails with ErrQueueFull when the worker
// is behind and with ErrClosed after Close.
func (d *Dispatcher) Publish(_ context.Context, topic string, rec model.Record) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- item{topic: topic, rec: rec}:
		return nil
	default:
		d.dropped.Add(1)
		return fmt.Errorf("%w: %s", ErrQueueFull, topic)
	}
}

// Stats returns the delivery counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
		Queued:    len(d.queue),
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer monitoring.Recover()
	for it := range d.queue {
		d.deliver(it)
	}
}

// deliver publishes it to every member of the wrapped sink. Each member is
// retried on its own so a failing one never duplicates records in the rest.
func (d *Dispatcher) deliver(it item) {
	pending := members(d.sink)
	var err error
	for attempt := 0; attempt <= d.cfg.Retries && len(pending) > 0; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.cfg.Backoff * time.Duration(1<<(attempt-1))):
			case <-d.ctx.Done():
			}
		}
		if d.ctx.Err() != nil {
			err = d.ctx.Err()
			break
		}
		var failed []Sink
		var errs []error
		for _, s := range pending {
			ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
			perr := s.Publish(ctx, it.topic, it.rec)
			cancel()
			if perr != nil {
				failed = append(failed, s)
				errs = append(errs, perr)
			}
		}
		pending, err = failed, errors.Join(errs...)
	}
	if len(pending) == 0 {
		d.delivered.Add(1)
		return
	}
	d.failed.Add(1)
	d.log.Warnw("telemetry delivery failed", map[string]any{
		"topic":     it.topic,
		"device_id": it.rec.DeviceID,
		"tick":      it.rec.Tick,
		"sinks":     len(pending),
		"error":     err.Error(),
	})
	monitoring.CaptureException(err, map[string]string{"topic": it.topic})
}

// members flattens nested MultiSinks into their leaf sinks.
func members(s Sink) []Sink {
	m, ok := s.(*MultiSink)
	if !ok {
		return []Sink{s}
	}
	var out []Sink
	for _, child := range m.Sinks {
		out = append(out, members(child)...)
	}
	return out
}

// Close stops accepting records and waits for the queue to drain. When ctx
// expires first, pending deliveries are abandoned. The wrapped sink is
// closed afterwards.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	var err error
	select {
	case <-d.done:
	case <-ctx.Done():
		d.cancel()
		<-d.done
		err = fmt.Errorf("telemetry drain: %w", ctx.Err())
	}
	d.cancel()
	if c, ok := d.sink.(Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
