// Package store keeps telemetry records in local files so a run can be
// inspected without a broker or time-series database.
package store

import (
	"context"
	"time"

	"github.com/kilianp07/gridsim/core/model"
)

// Entry is a stored record and the topic it was published on.
type Entry struct {
	Topic  string       `json:"topic"`
	Time   time.Time    `json:"time"`
	Record model.Record `json:"record"`
}

// Query filters stored entries. Zero values match everything.
type Query struct {
	RunID      string
	DeviceID   string
	DeviceKind string
	Topic      string
	// Start and End bound the simulated time, inclusive.
	Start time.Time
	End   time.Time
	Limit int
}

func (q Query) match(e Entry) bool {
	switch {
	case q.RunID != "" && e.Record.RunID != q.RunID:
		return false
	case q.DeviceID != "" && e.Record.DeviceID != q.DeviceID:
		return false
	case q.DeviceKind != "" && e.Record.DeviceKind != q.DeviceKind:
		return false
	case q.Topic != "" && e.Topic != q.Topic:
		return false
	case !q.Start.IsZero() && e.Time.Before(q.Start):
		return false
	case !q.End.IsZero() && e.Time.After(q.End):
		return false
	}
	return true
}

// Store is a telemetry sink that can be queried back.
type Store interface {
	Publish(ctx context.Context, topic string, rec model.Record) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}

func newEntry(topic string, rec model.Record) Entry {
	return Entry{Topic: topic, Time: rec.Time.UTC(), Record: rec}
}

func (e *Entry) restore() { e.Record.Time = e.Time }
