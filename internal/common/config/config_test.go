package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stopsYAML = `
stops:
  - type: bus
    name: "1234"
    line: "38"
    direction: A
    display_name: "Porte d'Orléans"
  - type: metro
    name: chatelet
    line: "1"
    direction: R
`

func TestParseStops(t *testing.T) {
	stops, err := ParseStops([]byte(stopsYAML))
	require.NoError(t, err)
	require.Len(t, stops, 2)

	assert.Equal(t, Stop{Type: TypeBus, Name: "1234", Line: "38", Direction: "A", DisplayName: "Porte d'Orléans"}, stops[0])
	assert.Equal(t, Stop{Type: TypeMetro, Name: "chatelet", Line: "1", Direction: "R"}, stops[1])
}

func TestParseStopsRejectsUnknownType(t *testing.T) {
	_, err := ParseStops([]byte(`
stops:
  - type: tram
    name: "1234"
    line: "3a"
    direction: A
`))
	assert.Error(t, err)
}

func TestParseStopsRejectsMissingFields(t *testing.T) {
	_, err := ParseStops([]byte(`
stops:
  - type: bus
    line: "38"
`))
	assert.Error(t, err)
}

func TestParseStopsRejectsEmptyList(t *testing.T) {
	_, err := ParseStops([]byte("stops: []\n"))
	assert.Error(t, err)
}

func TestParseStopsInvalidYAML(t *testing.T) {
	_, err := ParseStops([]byte("invalid: yaml: content: [[["))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.yml")
	require.NoError(t, os.WriteFile(path, []byte(stopsYAML), 0644))

	t.Setenv("RATP_STOPS_FILE", path)
	t.Setenv("SCAN_INTERVAL", "15s")
	t.Setenv("RATP_HTTP_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api-ratp.pierre-grimaud.fr/v4", cfg.RATP.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.RATP.Timeout)
	assert.Equal(t, 60*time.Second, cfg.RATP.MinTimeBetweenUpdates)
	assert.Equal(t, 15*time.Second, cfg.Host.ScanInterval)
	assert.Len(t, cfg.Stops, 2)
}

func TestLoadMissingStopsFile(t *testing.T) {
	t.Setenv("RATP_STOPS_FILE", filepath.Join(t.TempDir(), "missing.yml"))

	_, err := Load()
	assert.Error(t, err)
}
