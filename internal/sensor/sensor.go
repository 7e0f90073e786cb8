package sensor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ratp-sensor/internal/common/config"
	"github.com/ratp-sensor/internal/common/logger"
	"github.com/ratp-sensor/internal/ratp"
)

const (
	Attribution = "Data provided by RATP & Rest API from Pierre Grimaud"
	Unit        = "minutes"

	IconBus   = "mdi:bus-clock"
	IconMetro = "mdi:clock-end"

	AtStopMessage = "A l'arret"

	AttrAttribution = "attribution"
	AttrStop        = "stop"
	AttrLine        = "line"
	AttrDirection   = "direction"
	AttrNext        = "next"

	DefaultMinTimeBetweenUpdates = 60 * time.Second
)

// Fetcher builds schedule URLs and retrieves them.
type Fetcher interface {
	SchedulesURL(transportType, line, stop, direction string) (string, error)
	FetchSchedules(ctx context.Context, url string) (*ratp.ScheduleResponse, error)
}

type Options struct {
	MinTimeBetweenUpdates time.Duration
	Now                   func() time.Time
}

// Sensor reports the next two departures for one stop/line/direction.
type Sensor struct {
	stop     config.Stop
	name     string
	url      string
	fetcher  Fetcher
	throttle *Throttle
	logger   logger.Logger

	mu    sync.RWMutex
	state *int
	next  *int
}

func New(stop config.Stop, name string, fetcher Fetcher, opts Options, log logger.Logger) (*Sensor, error) {
	url, err := fetcher.SchedulesURL(stop.Type, stop.Line, stop.Name, stop.Direction)
	if err != nil {
		return nil, fmt.Errorf("building schedules url for %s: %w", name, err)
	}

	interval := opts.MinTimeBetweenUpdates
	if interval <= 0 {
		interval = DefaultMinTimeBetweenUpdates
	}

	return &Sensor{
		stop:     stop,
		name:     name,
		url:      url,
		fetcher:  fetcher,
		throttle: NewThrottle(interval, opts.Now),
		logger:   log.With("sensor", name),
	}, nil
}

func (s *Sensor) Name() string {
	return s.name
}

func (s *Sensor) Icon() string {
	if s.stop.Type == config.TypeBus {
		return IconBus
	}
	return IconMetro
}

func (s *Sensor) Unit() string {
	return Unit
}

func (s *Sensor) UniqueID() string {
	return fmt.Sprintf("%s_%s_%s", s.stop.Name, s.stop.Line, s.stop.Direction)
}

func (s *Sensor) URL() string {
	return s.url
}

// State returns the minutes until the next departure, or false before the
// first successful update.
func (s *Sensor) State() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return 0, false
	}
	return *s.state, true
}

func (s *Sensor) Attributes() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next interface{}
	if s.next != nil {
		next = *s.next
	}
	return map[string]interface{}{
		AttrAttribution: Attribution,
		AttrStop:        s.stop.Name,
		AttrLine:        s.stop.Line,
		AttrDirection:   s.stop.Direction,
		AttrNext:        next,
	}
}

// Update refreshes the two departures. It does nothing when called again
// within the minimum interval. HTTP failures are logged and leave the previous
// values in place; malformed responses are returned to the caller.
func (s *Sensor) Update(ctx context.Context) error {
	if !s.throttle.Allow() {
		s.logger.Debug("Update throttled")
		return nil
	}

	res, err := s.fetcher.FetchSchedules(ctx, s.url)
	if err != nil {
		var httpErr *ratp.HTTPError
		if errors.As(err, &httpErr) {
			s.logger.Error("Unable to fetch data from RATP API", "url", s.url, "error", err)
			return nil
		}
		return fmt.Errorf("fetching schedules: %w", err)
	}

	schedules := res.Result.Schedules
	if len(schedules) < 2 {
		return fmt.Errorf("expected at least 2 schedules, got %d", len(schedules))
	}

	current, err := ParseMessage(schedules[0].Message)
	if err != nil {
		return fmt.Errorf("parsing first departure: %w", err)
	}
	next, err := ParseMessage(schedules[1].Message)
	if err != nil {
		return fmt.Errorf("parsing second departure: %w", err)
	}

	s.mu.Lock()
	s.state = &current
	s.next = &next
	s.mu.Unlock()

	s.logger.Debug("Departures updated", "current", current, "next", next)
	return nil
}

// ParseMessage converts a schedule message to minutes: "A l'arret" is 0,
// otherwise the message is a number followed by a two character unit.
func ParseMessage(message string) (int, error) {
	if message == AtStopMessage {
		return 0, nil
	}
	if len(message) < 2 {
		return 0, fmt.Errorf("unexpected schedule message %q", message)
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(message[:len(message)-2]))
	if err != nil {
		return 0, fmt.Errorf("unexpected schedule message %q: %w", message, err)
	}
	return minutes, nil
}
