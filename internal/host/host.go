package host

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ratp-sensor/internal/common/logger"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"

	DefaultScanInterval = 30 * time.Second
)

var (
	departureGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratp_departure_minutes",
		Help: "Minutes until departure as last reported by a sensor",
	}, []string{"entity_id", "which"})
	availableGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratp_entity_available",
		Help: "1 when the last update of the entity succeeded",
	}, []string{"entity_id"})
)

func init() {
	prometheus.MustRegister(departureGauge, availableGauge)
}

// Entity is the capability surface a sensor exposes to the host.
type Entity interface {
	Name() string
	Icon() string
	Unit() string
	UniqueID() string
	State() (int, bool)
	Attributes() map[string]interface{}
	Update(ctx context.Context) error
}

// Notifier receives alerts when an entity becomes unavailable.
type Notifier interface {
	Notify(ctx context.Context, level, message string, fields map[string]interface{}) error
}

type Config struct {
	ScanInterval time.Duration
}

// StateSnapshot mirrors the Home Assistant REST representation of an entity.
type StateSnapshot struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastUpdated time.Time              `json:"last_updated"`
}

type registered struct {
	entity      Entity
	entityID    string
	available   bool
	lastUpdated time.Time
}

// Host owns the entities and drives their updates from a single goroutine.
type Host struct {
	config   Config
	logger   logger.Logger
	notifier Notifier
	now      func() time.Time

	mu        sync.RWMutex
	entities  []*registered
	byID      map[string]*registered
	uniqueIDs map[string]bool
	running   bool
}

func New(cfg Config, log logger.Logger, notifier Notifier) *Host {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	return &Host{
		config:    cfg,
		logger:    log,
		notifier:  notifier,
		now:       time.Now,
		byID:      make(map[string]*registered),
		uniqueIDs: make(map[string]bool),
	}
}

// AddEntities registers entities, running one update on each first when
// updateBeforeAdd is set. Entities whose unique id is already registered are skipped.
func (h *Host) AddEntities(ctx context.Context, entities []Entity, updateBeforeAdd bool) {
	for _, e := range entities {
		h.mu.RLock()
		dup := h.uniqueIDs[e.UniqueID()]
		h.mu.RUnlock()
		if dup {
			h.logger.Warn("Entity with this unique id already registered, skipping",
				"unique_id", e.UniqueID(),
				"name", e.Name())
			continue
		}

		h.mu.Lock()
		r := &registered{
			entity:    e,
			entityID:  h.allocateEntityID(e.Name()),
			available: true,
		}
		h.entities = append(h.entities, r)
		h.byID[r.entityID] = r
		h.uniqueIDs[e.UniqueID()] = true
		h.mu.Unlock()

		h.logger.Info("Entity registered", "entity_id", r.entityID, "unique_id", e.UniqueID())

		if updateBeforeAdd {
			h.updateEntity(ctx, r)
		}
	}
}

// Run polls every entity once per scan interval until ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("host already running")
	}
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	h.logger.Info("Starting poll cycle", "scan_interval", h.config.ScanInterval, "entities", h.Len())

	ticker := time.NewTicker(h.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Poll cycle stopped")
			return nil
		case <-ticker.C:
			h.UpdateAll(ctx)
		}
	}
}

// UpdateAll runs one update on every registered entity, in registration order.
func (h *Host) UpdateAll(ctx context.Context) {
	h.mu.RLock()
	entities := make([]*registered, len(h.entities))
	copy(entities, h.entities)
	h.mu.RUnlock()

	for _, r := range entities {
		if ctx.Err() != nil {
			return
		}
		h.updateEntity(ctx, r)
	}
}

func (h *Host) updateEntity(ctx context.Context, r *registered) {
	err := r.entity.Update(ctx)

	h.mu.Lock()
	wasAvailable := r.available
	r.available = err == nil
	if err == nil {
		r.lastUpdated = h.now()
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("Update of entity failed", "entity_id", r.entityID, "error", err)
		availableGauge.WithLabelValues(r.entityID).Set(0)
		if wasAvailable {
			h.notify(ctx, r, err)
		}
		return
	}

	if !wasAvailable {
		h.logger.Info("Entity available again", "entity_id", r.entityID)
	}
	availableGauge.WithLabelValues(r.entityID).Set(1)
	if state, ok := r.entity.State(); ok {
		departureGauge.WithLabelValues(r.entityID, "current").Set(float64(state))
	}
	if next, ok := r.entity.Attributes()["next"].(int); ok {
		departureGauge.WithLabelValues(r.entityID, "next").Set(float64(next))
	}
}

func (h *Host) notify(ctx context.Context, r *registered, cause error) {
	if h.notifier == nil {
		return
	}
	err := h.notifier.Notify(ctx, "ERROR", fmt.Sprintf("%s is unavailable", r.entity.Name()), map[string]interface{}{
		"entity_id": r.entityID,
		"unique_id": r.entity.UniqueID(),
		"error":     cause.Error(),
	})
	if err != nil {
		h.logger.Warn("Failed to send alert", "entity_id", r.entityID, "error", err)
	}
}

func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entities)
}

// States returns a snapshot of every entity in registration order.
func (h *Host) States() []StateSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]StateSnapshot, 0, len(h.entities))
	for _, r := range h.entities {
		out = append(out, snapshot(r))
	}
	return out
}

func (h *Host) State(entityID string) (StateSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.byID[entityID]
	if !ok {
		return StateSnapshot{}, false
	}
	return snapshot(r), true
}

func snapshot(r *registered) StateSnapshot {
	attrs := r.entity.Attributes()
	attrs["friendly_name"] = r.entity.Name()
	attrs["unit_of_measurement"] = r.entity.Unit()
	attrs["icon"] = r.entity.Icon()

	state := StateUnknown
	if !r.available {
		state = StateUnavailable
	} else if v, ok := r.entity.State(); ok {
		state = fmt.Sprintf("%d", v)
	}

	return StateSnapshot{
		EntityID:    r.entityID,
		State:       state,
		Attributes:  attrs,
		LastUpdated: r.lastUpdated,
	}
}

// allocateEntityID must be called with h.mu held.
func (h *Host) allocateEntityID(name string) string {
	base := "sensor." + Slugify(name)
	id := base
	for i := 2; h.byID[id] != nil; i++ {
		id = fmt.Sprintf("%s_%d", base, i)
	}
	return id
}

// Slugify lowercases name, strips accents and joins the remaining
// alphanumeric runs with underscores.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	pendingSep := false
	for _, c := range strings.ToLower(plain) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(c)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
