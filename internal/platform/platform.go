package platform

import (
	"context"
	"fmt"

	"github.com/ratp-sensor/internal/common/config"
	"github.com/ratp-sensor/internal/common/logger"
	"github.com/ratp-sensor/internal/host"
	"github.com/ratp-sensor/internal/sensor"
)

// EntityAdder is the host side of platform setup.
type EntityAdder interface {
	AddEntities(ctx context.Context, entities []host.Entity, updateBeforeAdd bool)
}

// DisplayName is "{line} - {display_name} ({stop})" when an override is set,
// "{line} - {stop}" otherwise.
func DisplayName(stop config.Stop) string {
	if stop.DisplayName != "" {
		return fmt.Sprintf("%s - %s (%s)", stop.Line, stop.DisplayName, stop.Name)
	}
	return fmt.Sprintf("%s - %s", stop.Line, stop.Name)
}

// Setup builds one sensor per stop and hands them to the host for an initial
// forced update.
func Setup(ctx context.Context, stops []config.Stop, fetcher sensor.Fetcher, opts sensor.Options, log logger.Logger, adder EntityAdder) error {
	entities := make([]host.Entity, 0, len(stops))
	for _, stop := range stops {
		s, err := sensor.New(stop, DisplayName(stop), fetcher, opts, log)
		if err != nil {
			return fmt.Errorf("setting up sensor: %w", err)
		}
		entities = append(entities, s)
	}

	log.Info("Platform set up", "sensors", len(entities))
	adder.AddEntities(ctx, entities, true)
	return nil
}
