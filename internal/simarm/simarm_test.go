package simarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/picker/internal/arm"
	"github.com/banshee-data/picker/internal/monitoring"
	"github.com/banshee-data/picker/internal/planner"
	"github.com/banshee-data/picker/internal/serialmux"
	"github.com/banshee-data/picker/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// connect puts sim behind a serial mux and returns a client for it.
func connect(t *testing.T, sim *Arm) (*serialmux.SerialMux[*Arm], *arm.Client) {
	t.Helper()
	mux := serialmux.NewSerialMux(sim)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		mux.Close()
		<-done
	})
	return mux, arm.NewClient(mux)
}

func mockConfig() Config {
	return Config{Clock: timeutil.NewMockClock(time.Unix(0, 0))}
}

func TestArm_PingAndPosition(t *testing.T) {
	cfg := mockConfig()
	cfg.Start = planner.Position{X: 300, Y: 40}
	_, client := connect(t, New(cfg))
	ctx := context.Background()

	id, err := client.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, Identity, id)

	pos, err := client.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, planner.Position{X: 300, Y: 40}, pos)

	require.NoError(t, client.MoveTo(ctx, 900, -5))
	pos, err = client.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, planner.Position{X: 900, Y: -5}, pos)
}

func TestArm_RejectsUnfoldedEntry(t *testing.T) {
	sim := New(mockConfig())
	_, client := connect(t, sim)
	ctx := context.Background()

	// resting on the edge is fine unfolded
	require.NoError(t, client.MoveTo(ctx, 1000, 0))

	err := client.MoveTo(ctx, 1500, 0)
	var devErr *arm.DeviceError
	require.True(t, errors.As(err, &devErr), "got %v", err)
	assert.Contains(t, devErr.Message, "hazard")
	assert.Equal(t, planner.Position{X: 1000, Y: 0}, sim.Position())

	// a crossing that never stops inside is rejected too
	err = client.MoveTo(ctx, 2500, 0)
	assert.True(t, errors.As(err, &devErr))
}

func TestArm_FoldedTraversalAndUnfold(t *testing.T) {
	sim := New(mockConfig())
	_, client := connect(t, sim)
	ctx := context.Background()

	_, err := client.Execute(ctx, planner.MotionFold)
	require.NoError(t, err)
	assert.True(t, sim.Folded())
	require.NoError(t, client.MoveTo(ctx, 1500, 0))

	_, err = client.Execute(ctx, planner.MotionUnfold)
	var devErr *arm.DeviceError
	require.True(t, errors.As(err, &devErr), "unfold inside must be refused")
	assert.True(t, sim.Folded())

	require.NoError(t, client.MoveTo(ctx, 2000, 0))
	_, err = client.Execute(ctx, planner.MotionUnfold)
	require.NoError(t, err)
	assert.False(t, sim.Folded())
}

func TestArm_PickUsesJammedPositions(t *testing.T) {
	cfg := mockConfig()
	cfg.Jammed = []planner.Position{{X: 100, Y: 0}}
	_, client := connect(t, New(cfg))
	ctx := context.Background()

	ok, err := client.Execute(ctx, planner.MotionPick)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, client.MoveTo(ctx, 100, 0))
	ok, err = client.Execute(ctx, planner.MotionPick)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArm_MalformedRequest(t *testing.T) {
	mux, _ := connect(t, New(mockConfig()))
	reply, err := mux.Request(context.Background(), "JUMP 3")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "ERR "), reply)
}

func TestArm_Telemetry(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sim := New(Config{
		Clock:             clock,
		Start:             planner.Position{X: 7, Y: 8},
		TelemetryInterval: time.Second,
	})
	mux, _ := connect(t, sim)
	_, lines := mux.Subscribe()

	deadline := time.After(2 * time.Second)
	for {
		clock.Advance(time.Second)
		select {
		case line := <-lines:
			assert.Equal(t, "T pos=7,8 folded=false", line)
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("no telemetry received")
		}
	}
}

// memInventory is a minimal in-memory planner.Inventory.
type memInventory struct {
	mu      sync.Mutex
	slots   map[string]planner.Slot
	stock   map[string][]string
	picked  []string
	flagged []string
}

func (m *memInventory) FindSlotsBySKU(_ context.Context, sku string) ([]planner.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []planner.Slot
	for _, id := range m.stock[sku] {
		out = append(out, m.slots[id])
	}
	return out, nil
}

func (m *memInventory) GetSlot(_ context.Context, id string) (planner.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return planner.Slot{}, fmt.Errorf("slot %q not found", id)
	}
	return s, nil
}

func (m *memInventory) ItemPicked(_ context.Context, slotID, sku string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.picked = append(m.picked, slotID+":"+sku)
	return nil
}

func (m *memInventory) FlagSlotError(_ context.Context, slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged = append(m.flagged, slotID)
	return nil
}

func TestFulfilmentAgainstSimulator(t *testing.T) {
	inv := &memInventory{
		slots: map[string]planner.Slot{
			"bag":   {ID: "bag", X: 0, Y: 0},
			"left":  {ID: "left", X: 500, Y: 10},
			"mid":   {ID: "mid", X: 1500, Y: 20},
			"right": {ID: "right", X: 2600, Y: 30},
			"far":   {ID: "far", X: 3000, Y: 30},
		},
		stock: map[string][]string{
			"apple":  {"mid"},
			"banana": {"right", "far"},
			"cherry": {"left"},
			"durian": {},
		},
	}

	// real latency so paired motions genuinely overlap on the wire
	sim := New(Config{
		Start:         planner.Position{X: 0, Y: 0},
		MoveLatency:   2 * time.Millisecond,
		MotionLatency: 2 * time.Millisecond,
		Jammed:        []planner.Position{{X: 2600, Y: 30}},
	})
	_, client := connect(t, sim)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f, err := planner.NewFulfiller(ctx, client, inv, planner.Config{
		Hazard:        planner.DefaultHazard(),
		BaggingSlotID: "bag",
	})
	require.NoError(t, err)

	res, err := f.FulfillOrder(ctx, planner.Order{ID: "o-1", Items: []planner.Item{
		{SKU: "apple"}, {SKU: "banana"}, {SKU: "durian"}, {SKU: "cherry"},
	}})
	require.NoError(t, err, "the simulator refuses every unsafe command")

	assert.Equal(t, []planner.Pick{
		{SKU: "apple", SlotID: "mid"},
		{SKU: "banana", SlotID: "far"},
		{SKU: "cherry", SlotID: "left"},
	}, res.Picks)
	assert.Equal(t, []string{"durian"}, res.Unfulfilled)
	assert.Equal(t, []string{"right"}, res.FlaggedSlots)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, []string{"mid:apple", "far:banana", "left:cherry"}, inv.picked)
	assert.Equal(t, []string{"right"}, inv.flagged)

	assert.Equal(t, planner.Position{X: 0, Y: 0}, sim.Position())
	assert.False(t, sim.Folded())
	events := sim.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "PLACE_BAG", events[len(events)-1])
}
