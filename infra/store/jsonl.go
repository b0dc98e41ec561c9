package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/gridsim/core/model"
)

// JSONLStore appends records to a JSONL file with automatic rotation.
type JSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewJSONLStore creates a store with rotation options in megabytes and days.
func NewJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JSONLStore{logger: lj, path: path}, nil
}

// Publish appends the record; lumberjack rotates the file when it grows
// past the configured size.
func (s *JSONLStore) Publish(_ context.Context, topic string, rec model.Record) error {
	b, err := json.Marshal(newEntry(topic, rec))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.logger.Write(append(b, '\n'))
	return err
}

// Query reads the current and rotated files, oldest entries first.
func (s *JSONLStore) Query(ctx context.Context, q Query) ([]Entry, error) {
	files, err := filepath.Glob(s.path + "*")
	if err != nil {
		return nil, err
	}
	rotated, _ := filepath.Glob(rotatedPattern(s.path))
	files = append(files, rotated...)
	var res []Entry
	seen := make(map[string]bool)
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := readEntries(f, q)
		if err != nil {
			continue
		}
		res = append(res, entries...)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Time.Before(res[j].Time) })
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}
	return res, nil
}

// rotatedPattern matches lumberjack backups, which are named
// <name>-<timestamp><ext> next to the active file.
func rotatedPattern(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + "-*" + ext
}

func readEntries(path string, q Query) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	var res []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !q.match(e) {
			continue
		}
		e.restore()
		res = append(res, e)
	}
	return res, scanner.Err()
}

// Close closes the underlying writer.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger.Close()
}
