package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/gridsim/core/model"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT,
        tick INTEGER,
        ts INTEGER,
        topic TEXT,
        device_id TEXT,
        device_kind TEXT,
        record TEXT
    );`
	index := `CREATE INDEX IF NOT EXISTS records_device ON records (device_id, ts);`
	for _, stmt := range []string{schema, index} {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Publish writes the record to the database.
func (s *SQLiteStore) Publish(ctx context.Context, topic string, rec model.Record) error {
	e := newEntry(topic, rec)
	b, err := json.Marshal(e.Record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (run_id, tick, ts, topic, device_id, device_kind, record) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Tick, e.Time.UnixNano(), topic, rec.DeviceID, rec.DeviceKind, string(b))
	return err
}

// Query returns entries matching q ordered by simulated time.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Entry, error) {
	var args []any
	query := `SELECT topic, ts, record FROM records WHERE 1=1`
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.DeviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, q.DeviceID)
	}
	if q.DeviceKind != "" {
		query += ` AND device_kind = ?`
		args = append(args, q.DeviceKind)
	}
	if q.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, q.Topic)
	}
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	query += ` ORDER BY ts, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Entry
	for rows.Next() {
		var (
			e    Entry
			ts   int64
			data string
		)
		if err := rows.Scan(&e.Topic, &ts, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		e.Time = timeFromNanos(ts)
		e.restore()
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func timeFromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }
