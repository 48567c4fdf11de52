package planner

import "context"

// Motion issues low-level commands to the arm. Every call blocks until the
// arm reports completion. A returned error is a motion fault; a PICK that
// simply failed to grasp returns (false, nil).
type Motion interface {
	// Position returns the current arm location.
	Position(ctx context.Context) (Position, error)
	// MoveTo translates the arm to (x, y) without changing its fold state.
	MoveTo(ctx context.Context, x, y int) error
	// Execute performs m. For MotionPick the result reports whether an item
	// was grasped; for the other motions it is conventionally true.
	Execute(ctx context.Context, m ArmMotion) (bool, error)
}

// Inventory resolves SKUs to slots and records pick outcomes.
type Inventory interface {
	// FindSlotsBySKU returns the slots stocking sku in the order they should
	// be tried.
	FindSlotsBySKU(ctx context.Context, sku string) ([]Slot, error)
	// GetSlot looks up a single slot by id.
	GetSlot(ctx context.Context, id string) (Slot, error)
	// ItemPicked records that one unit of sku was taken from the slot.
	ItemPicked(ctx context.Context, slotID, sku string) error
	// FlagSlotError records a failed physical pick at the slot.
	FlagSlotError(ctx context.Context, slotID string) error
}
