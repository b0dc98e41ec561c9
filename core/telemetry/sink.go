package telemetry

import (
	"context"
	"errors"

	"github.com/kilianp07/gridsim/core/model"
)

var (
	ErrQueueFull = errors.New("telemetry queue full")
	ErrClosed    = errors.New("telemetry dispatcher closed")
)

// Sink receives one record per device per published tick.
type Sink interface {
	Publish(ctx context.Context, topic string, rec model.Record) error
}

// Closer is implemented by sinks holding connections or files.
type Closer interface {
	Close() error
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Publish(context.Context, string, model.Record) error { return nil }

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, topic string, rec model.Record) error

func (f SinkFunc) Publish(ctx context.Context, topic string, rec model.Record) error {
	return f(ctx, topic, rec)
}

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{Sinks: sinks} }

// Publish forwards the record to every sink; a failing sink does not keep
// the others from receiving it.
func (m *MultiSink) Publish(ctx context.Context, topic string, rec model.Record) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Publish(ctx, topic, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink implementing Closer.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
