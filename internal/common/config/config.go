package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	TypeBus   = "bus"
	TypeMetro = "metro"
)

type Config struct {
	RATP    RATPConfig
	Host    HostConfig
	Server  ServerConfig
	Logging LoggingConfig
	Stops   []Stop
}

type RATPConfig struct {
	BaseURL               string
	Timeout               time.Duration
	MinTimeBetweenUpdates time.Duration
	StopsFile             string
}

type HostConfig struct {
	ScanInterval time.Duration
}

type ServerConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level      string
	FilePath   string
	DiscordURL string
}

// Stop is one monitored stop/line/direction. Name is the API stop slug;
// DisplayName optionally overrides the human readable part of the sensor name.
type Stop struct {
	Type        string `yaml:"type" validate:"required,oneof=bus metro"`
	Name        string `yaml:"name" validate:"required"`
	Line        string `yaml:"line" validate:"required"`
	Direction   string `yaml:"direction" validate:"required"`
	DisplayName string `yaml:"display_name"`
}

type stopsFile struct {
	Stops []Stop `yaml:"stops" validate:"required,min=1,dive"`
}

// Load reads settings from the environment and the stop list from the YAML
// file named by RATP_STOPS_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		RATP: RATPConfig{
			BaseURL:               getEnv("RATP_API_BASE_URL", "https://api-ratp.pierre-grimaud.fr/v4"),
			Timeout:               getDurationEnv("RATP_HTTP_TIMEOUT", 10*time.Second),
			MinTimeBetweenUpdates: getDurationEnv("MIN_TIME_BETWEEN_UPDATES", 60*time.Second),
			StopsFile:             getEnv("RATP_STOPS_FILE", "stops.yml"),
		},
		Host: HostConfig{
			ScanInterval: getDurationEnv("SCAN_INTERVAL", 30*time.Second),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", "ratpsensor.log"),
			DiscordURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	stops, err := LoadStops(cfg.RATP.StopsFile)
	if err != nil {
		return nil, err
	}
	cfg.Stops = stops

	return cfg, nil
}

func LoadStops(path string) ([]Stop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stops file: %w", err)
	}
	return ParseStops(data)
}

// ParseStops decodes and validates a YAML document with a top-level stops list.
func ParseStops(data []byte) ([]Stop, error) {
	var f stopsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding stops: %w", err)
	}

	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("validating stops: %w", err)
	}

	return f.Stops, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
