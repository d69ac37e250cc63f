package application

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "team", "A")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "A", line["team"])

	buf.Reset()
	NewLogger(LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("details")
	assert.Contains(t, buf.String(), "msg=details")

	buf.Reset()
	NewLogger(LoggingConfig{Level: "nonsense"}, &buf).Debug("dropped")
	assert.Empty(t, buf.String(), "unknown level falls back to info")
}
