package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test", Options{Level: "debug"})
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"tick": 3})
	l.Warnf("warn")
	l.Warnw("warn", map[string]any{"field": "irradiance"})
	l.Errorf("error")
}

func TestZerologLoggerLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newZerolog(&buf, "sim", Options{Level: "warn", Format: "json"})
	l.Infof("hidden")
	l.Warnw("sensor deviation", map[string]any{"device_id": "bess-1"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "sim", entry["component"])
	assert.Equal(t, "bess-1", entry["device_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.NoError(t, Options{Level: "DEBUG", Format: "console"}.Validate())
	assert.Error(t, Options{Level: "verbose"}.Validate())
	assert.Error(t, Options{Format: "xml"}.Validate())
}
