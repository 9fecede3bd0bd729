package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, slog.LevelDebug).WithComponent("grid").WithDims(3, 1)

	l.LogInitialize(8, nil)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "initialization completed", rec["msg"])
	assert.Equal(t, "grid", rec["component"])
	assert.EqualValues(t, 3, rec["input_dim"])
	assert.EqualValues(t, 8, rec["rows"])
}

func TestLogInitializeFailureIsError(t *testing.T) {
	var buf bytes.Buffer
	l := NewText(&buf, slog.LevelError)

	l.LogInitialize(0, errors.New("boom"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "boom")
}

func TestFromConfig(t *testing.T) {
	var buf bytes.Buffer
	FromConfig(&buf, "JSON", false).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))

	buf.Reset()
	FromConfig(&buf, "text", false).Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	FromConfig(&buf, "text", true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestOrNil(t *testing.T) {
	assert.NotNil(t, Or(nil))
	l := Noop()
	assert.Same(t, l, Or(l))
}
