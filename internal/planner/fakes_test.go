package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// fakeArm is a recording Motion that keeps its own position and fold state
// and notes any move that would carry an unfolded arm through the interior
// of the hazard interval.
type fakeArm struct {
	mu         sync.Mutex
	hazard     Hazard
	pos        Position
	folded     bool
	calls      []string
	violations []string

	// pickOK decides PICK results by position; missing entries succeed.
	pickOK map[Position]bool
	// failOn makes the named call ("move(x,y)" or a motion name) return err.
	failOn string
	err    error
	// hooks run on entry to the named call, outside the lock.
	hooks map[string]func(ctx context.Context) error
}

func newFakeArm(start Position) *fakeArm {
	return &fakeArm{
		hazard: DefaultHazard(),
		pos:    start,
		folded: DefaultHazard().Contains(start.X),
		pickOK: map[Position]bool{},
		hooks:  map[string]func(context.Context) error{},
	}
}

func (a *fakeArm) record(call string) error {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	failOn, err := a.failOn, a.err
	a.mu.Unlock()

	if call == failOn {
		return err
	}
	return nil
}

func (a *fakeArm) runHook(ctx context.Context, call string) error {
	a.mu.Lock()
	hook := a.hooks[call]
	a.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx)
}

func (a *fakeArm) Position(ctx context.Context) (Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos, nil
}

func (a *fakeArm) MoveTo(ctx context.Context, x, y int) error {
	call := fmt.Sprintf("move(%d,%d)", x, y)
	if err := a.record(call); err != nil {
		return err
	}
	if err := a.runHook(ctx, call); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	lo, hi := a.pos.X, x
	if lo > hi {
		lo, hi = hi, lo
	}
	// the segment touches the open interior of the interval
	if hi > a.hazard.Start && lo < a.hazard.End && !a.folded {
		a.violations = append(a.violations, fmt.Sprintf("unfolded %s -> (%d,%d)", a.pos, x, y))
	}
	a.pos = Position{X: x, Y: y}
	return nil
}

func (a *fakeArm) Execute(ctx context.Context, m ArmMotion) (bool, error) {
	call := m.String()
	if err := a.record(call); err != nil {
		return false, err
	}
	if err := a.runHook(ctx, call); err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch m {
	case MotionFold:
		a.folded = true
	case MotionUnfold:
		if a.pos.X > a.hazard.Start && a.pos.X < a.hazard.End {
			a.violations = append(a.violations, fmt.Sprintf("unfold inside interval at %s", a.pos))
		}
		a.folded = false
	case MotionPick:
		ok, set := a.pickOK[a.pos]
		return !set || ok, nil
	case MotionPlaceBag:
	default:
		return false, fmt.Errorf("%w: %v", ErrUnknownMotion, m)
	}
	return true, nil
}

func (a *fakeArm) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeArm) Violations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.violations...)
}

// grouped reorders calls so that each concurrent pair is sorted, making the
// sequence comparable with an expected plan regardless of which half of a
// pair was issued first. sizes gives the number of calls per step.
func grouped(calls []string, sizes ...int) [][]string {
	var out [][]string
	for _, n := range sizes {
		if len(calls) < n {
			out = append(out, calls)
			return out
		}
		g := append([]string(nil), calls[:n]...)
		sort.Strings(g)
		out = append(out, g)
		calls = calls[n:]
	}
	if len(calls) > 0 {
		out = append(out, calls)
	}
	return out
}

// fakeInventory is a recording Inventory.
type fakeInventory struct {
	mu       sync.Mutex
	slots    map[string]Slot
	bySKU    map[string][]string
	finds    []string
	picked   []Pick
	flagged  []string
	findErr  error
	flagErr  error
	pickErr  error
	getCalls int
}

func newFakeInventory(slots ...Slot) *fakeInventory {
	inv := &fakeInventory{
		slots: map[string]Slot{},
		bySKU: map[string][]string{},
	}
	for _, s := range slots {
		inv.slots[s.ID] = s
	}
	return inv
}

func (f *fakeInventory) stock(sku string, slotIDs ...string) {
	f.bySKU[sku] = append(f.bySKU[sku], slotIDs...)
}

func (f *fakeInventory) FindSlotsBySKU(ctx context.Context, sku string) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, sku)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []Slot
	for _, id := range f.bySKU[sku] {
		out = append(out, f.slots[id])
	}
	return out, nil
}

func (f *fakeInventory) GetSlot(ctx context.Context, id string) (Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	s, ok := f.slots[id]
	if !ok {
		return Slot{}, fmt.Errorf("slot %q not found", id)
	}
	return s, nil
}

func (f *fakeInventory) ItemPicked(ctx context.Context, slotID, sku string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pickErr != nil {
		return f.pickErr
	}
	f.picked = append(f.picked, Pick{SKU: sku, SlotID: slotID})
	return nil
}

func (f *fakeInventory) FlagSlotError(ctx context.Context, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flagErr != nil {
		return f.flagErr
	}
	f.flagged = append(f.flagged, slotID)
	return nil
}
