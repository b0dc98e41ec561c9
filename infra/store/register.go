package store

import (
	"github.com/kilianp07/gridsim/core/factory"
	"github.com/kilianp07/gridsim/core/telemetry"
)

// Config selects where a store sink writes.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func init() {
	_ = telemetry.RegisterSink("jsonl", func(conf map[string]any) (telemetry.Sink, error) {
		c := Config{Path: "records.jsonl", MaxSizeMB: 100}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = telemetry.RegisterSink("sqlite", func(conf map[string]any) (telemetry.Sink, error) {
		c := Config{Path: "records.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}
