package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/picker/internal/monitoring"
)

// ErrConfiguration marks faults detected while building a Fulfiller, before
// any order is accepted.
var ErrConfiguration = errors.New("planner configuration")

// Config holds the fixed parameters of a Fulfiller.
type Config struct {
	Hazard        Hazard
	BaggingSlotID string
}

// Pick records one item taken from a slot.
type Pick struct {
	SKU    string `json:"sku"`
	SlotID string `json:"slot_id"`
}

// Result describes how an order went. An order whose items could not all be
// picked still ends with the bag placed; the missing SKUs are listed in
// Unfulfilled, once per order line.
type Result struct {
	OrderID      string   `json:"order_id"`
	Picks        []Pick   `json:"picks"`
	Unfulfilled  []string `json:"unfulfilled"`
	FlaggedSlots []string `json:"flagged_slots"`
	// Attempts counts PICK motions issued.
	Attempts int `json:"attempts"`
}

// Complete reports whether every item of the order was picked.
func (r Result) Complete() bool {
	return len(r.Unfulfilled) == 0
}

// Fulfiller owns the arm for the duration of an order.
type Fulfiller struct {
	mu        sync.Mutex
	motion    Motion
	inventory Inventory
	nav       *Navigator
	bagging   Slot
}

// NewFulfiller resolves the bagging slot and validates the hazard interval.
// Either failing is reported as an error wrapping ErrConfiguration.
func NewFulfiller(ctx context.Context, motion Motion, inventory Inventory, cfg Config) (*Fulfiller, error) {
	nav, err := NewNavigator(motion, cfg.Hazard)
	if err != nil {
		return nil, err
	}
	if cfg.BaggingSlotID == "" {
		return nil, fmt.Errorf("%w: no bagging slot configured", ErrConfiguration)
	}
	bagging, err := inventory.GetSlot(ctx, cfg.BaggingSlotID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve bagging slot %q: %w", ErrConfiguration, cfg.BaggingSlotID, err)
	}
	return &Fulfiller{
		motion:    motion,
		inventory: inventory,
		nav:       nav,
		bagging:   bagging,
	}, nil
}

// BaggingSlot returns the slot every order is delivered to.
func (f *Fulfiller) BaggingSlot() Slot {
	return f.bagging
}

// FulfillOrder picks every item it can and then places the bag. Items are
// handled one at a time in order. A motion fault aborts the order and is
// returned unchanged; an inventory fault aborts it wrapped with context.
// Concurrent calls are serialized.
func (f *Fulfiller) FulfillOrder(ctx context.Context, order Order) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := Result{OrderID: order.ID}

	candidates := make(map[string][]Slot, len(order.Items))
	for _, sku := range order.SKUs() {
		slots, err := f.inventory.FindSlotsBySKU(ctx, sku)
		if err != nil {
			return res, fmt.Errorf("find slots for sku %q: %w", sku, err)
		}
		candidates[sku] = slots
	}

	// slots whose PICK failed are not retried later in the same order
	failed := make(map[string]bool)

	for _, item := range order.Items {
		picked, err := f.pickItem(ctx, item, candidates[item.SKU], failed, &res)
		if err != nil {
			return res, err
		}
		if !picked {
			monitoring.Logf("order %s: sku %s unfulfilled after %d candidates", order.ID, item.SKU, len(candidates[item.SKU]))
			res.Unfulfilled = append(res.Unfulfilled, item.SKU)
		}
	}

	if err := f.nav.Relocate(ctx, f.bagging); err != nil {
		return res, err
	}
	if _, err := f.motion.Execute(ctx, MotionPlaceBag); err != nil {
		return res, err
	}
	monitoring.Logf("order %s: bag placed, %d picked, %d unfulfilled", order.ID, len(res.Picks), len(res.Unfulfilled))
	return res, nil
}

// pickItem tries each candidate slot until one PICK succeeds.
func (f *Fulfiller) pickItem(ctx context.Context, item Item, slots []Slot, failed map[string]bool, res *Result) (bool, error) {
	for _, slot := range slots {
		if failed[slot.ID] {
			continue
		}
		if err := f.nav.Relocate(ctx, slot); err != nil {
			return false, err
		}
		res.Attempts++
		ok, err := f.motion.Execute(ctx, MotionPick)
		if err != nil {
			return false, err
		}
		if !ok {
			monitoring.Logf("order %s: pick of %s failed at slot %s", res.OrderID, item.SKU, slot.ID)
			failed[slot.ID] = true
			res.FlaggedSlots = append(res.FlaggedSlots, slot.ID)
			if err := f.inventory.FlagSlotError(ctx, slot.ID); err != nil {
				return false, fmt.Errorf("flag slot %q: %w", slot.ID, err)
			}
			continue
		}
		if err := f.inventory.ItemPicked(ctx, slot.ID, item.SKU); err != nil {
			return false, fmt.Errorf("record pick of %q at slot %q: %w", item.SKU, slot.ID, err)
		}
		res.Picks = append(res.Picks, Pick{SKU: item.SKU, SlotID: slot.ID})
		return true, nil
	}
	return false, nil
}
