package host

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ratp-sensor/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEntity struct {
	name     string
	uniqueID string

	mu      sync.Mutex
	state   *int
	errs    []error
	updates int
}

func (e *stubEntity) Name() string     { return e.name }
func (e *stubEntity) Icon() string     { return "mdi:bus-clock" }
func (e *stubEntity) Unit() string     { return "minutes" }
func (e *stubEntity) UniqueID() string { return e.uniqueID }

func (e *stubEntity) State() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return 0, false
	}
	return *e.state, true
}

func (e *stubEntity) Attributes() map[string]interface{} {
	return map[string]interface{}{"line": "38", "next": 12}
}

// Update fails with the queued errors in order, then succeeds with state 5.
func (e *stubEntity) Update(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates++
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		if err != nil {
			return err
		}
	}
	v := 5
	e.state = &v
	return nil
}

func (e *stubEntity) Updates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, level, message string, fields map[string]interface{}) error {
	n.messages = append(n.messages, level+": "+message)
	return nil
}

func newTestHost(n Notifier) *Host {
	return New(Config{ScanInterval: 10 * time.Millisecond}, logger.New(io.Discard), n)
}

func TestAddEntitiesWithForcedUpdate(t *testing.T) {
	h := newTestHost(nil)
	e := &stubEntity{name: "38 - Porte d'Orléans (1234)", uniqueID: "1234_38_A"}

	h.AddEntities(context.Background(), []Entity{e}, true)

	assert.Equal(t, 1, e.Updates())
	snap, ok := h.State("sensor.38_porte_d_orleans_1234")
	require.True(t, ok)
	assert.Equal(t, "5", snap.State)
	assert.Equal(t, "38 - Porte d'Orléans (1234)", snap.Attributes["friendly_name"])
	assert.Equal(t, "minutes", snap.Attributes["unit_of_measurement"])
	assert.Equal(t, "mdi:bus-clock", snap.Attributes["icon"])
	assert.Equal(t, 12, snap.Attributes["next"])
	assert.False(t, snap.LastUpdated.IsZero())
}

func TestAddEntitiesWithoutUpdate(t *testing.T) {
	h := newTestHost(nil)
	e := &stubEntity{name: "38 - 1234", uniqueID: "1234_38_A"}

	h.AddEntities(context.Background(), []Entity{e}, false)

	assert.Equal(t, 0, e.Updates())
	snap, ok := h.State("sensor.38_1234")
	require.True(t, ok)
	assert.Equal(t, StateUnknown, snap.State)
}

func TestDuplicateUniqueIDSkipped(t *testing.T) {
	h := newTestHost(nil)
	h.AddEntities(context.Background(), []Entity{
		&stubEntity{name: "38 - 1234", uniqueID: "1234_38_A"},
		&stubEntity{name: "38 - other", uniqueID: "1234_38_A"},
	}, false)

	assert.Equal(t, 1, h.Len())
}

func TestEntityIDCollision(t *testing.T) {
	h := newTestHost(nil)
	h.AddEntities(context.Background(), []Entity{
		&stubEntity{name: "38 - 1234", uniqueID: "1234_38_A"},
		&stubEntity{name: "38 - 1234", uniqueID: "1234_38_R"},
	}, false)

	states := h.States()
	require.Len(t, states, 2)
	assert.Equal(t, "sensor.38_1234", states[0].EntityID)
	assert.Equal(t, "sensor.38_1234_2", states[1].EntityID)
}

func TestUnavailableUntilNextSuccess(t *testing.T) {
	n := &recordingNotifier{}
	h := newTestHost(n)
	parseErr := errors.New("parsing first departure")
	e := &stubEntity{name: "38 - 1234", uniqueID: "1234_38_A", errs: []error{nil, parseErr, parseErr}}

	h.AddEntities(context.Background(), []Entity{e}, true)

	h.UpdateAll(context.Background())
	snap, _ := h.State("sensor.38_1234")
	assert.Equal(t, StateUnavailable, snap.State)

	h.UpdateAll(context.Background())
	assert.Len(t, n.messages, 1, "alert only on the available to unavailable transition")
	assert.Equal(t, "ERROR: 38 - 1234 is unavailable", n.messages[0])

	h.UpdateAll(context.Background())
	snap, _ = h.State("sensor.38_1234")
	assert.Equal(t, "5", snap.State)
}

func TestRun(t *testing.T) {
	h := newTestHost(nil)
	e := &stubEntity{name: "38 - 1234", uniqueID: "1234_38_A"}
	h.AddEntities(context.Background(), []Entity{e}, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	assert.Eventually(t, func() bool { return e.Updates() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "38_porte_d_orleans_1234", Slugify("38 - Porte d'Orléans (1234)"))
	assert.Equal(t, "1_chatelet", Slugify("1 - Châtelet"))
	assert.Equal(t, "unnamed", Slugify(" - "))
}
