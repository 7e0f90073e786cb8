package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLogLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel("bogus"))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel(""))
}

func TestFieldsAndWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf).With("entity", "sensor.38_1234")

	log.Error("Unable to fetch data", "error", errors.New("boom"), "status_code", 503)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "Unable to fetch data", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, float64(503), line["status_code"])
	assert.Equal(t, "sensor.38_1234", line["entity"])
}

func TestFieldsMap(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Info("started", map[string]interface{}{"stops": 2})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, float64(2), line["stops"])
}
