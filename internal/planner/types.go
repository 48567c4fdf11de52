// Package planner drives a single picking arm through an order: it moves the
// arm between storage slots without ever carrying it unfolded through the
// hazard interval, retries alternate slots when a pick fails, and finishes
// every order at the bagging slot.
package planner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMotion is returned when a motion outside the fixed set is
	// parsed or issued.
	ErrUnknownMotion = errors.New("unknown arm motion")
	// ErrInvalidOrder is returned by Order.Validate.
	ErrInvalidOrder = errors.New("invalid order")
)

// Item is one line of an order. Two items are the same kind of goods when
// their SKUs match.
type Item struct {
	SKU  string `json:"sku"`
	Name string `json:"name,omitempty"`
}

// Order is an immutable request to gather Items into one bag.
type Order struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// Validate reports whether the order can be handed to a Fulfiller.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	for i, item := range o.Items {
		if strings.TrimSpace(item.SKU) == "" {
			return fmt.Errorf("%w: item %d has no sku", ErrInvalidOrder, i)
		}
	}
	return nil
}

// SKUs returns the distinct SKUs of the order in first-seen order.
func (o Order) SKUs() []string {
	seen := make(map[string]bool, len(o.Items))
	skus := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if seen[item.SKU] {
			continue
		}
		seen[item.SKU] = true
		skus = append(skus, item.SKU)
	}
	return skus
}

// Position is an arm location on the warehouse grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Slot is one physical storage location.
type Slot struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// Position returns the grid coordinates of the slot.
func (s Slot) Position() Position {
	return Position{X: s.X, Y: s.Y}
}

// ArmMotion is a fixed arm movement that is not a translation. The set is
// closed; every switch over it must handle all four values.
type ArmMotion int

const (
	MotionPick     ArmMotion = 1
	MotionPlaceBag ArmMotion = 2
	MotionFold     ArmMotion = 10
	MotionUnfold   ArmMotion = 11
)

// String returns the wire name of the motion.
func (m ArmMotion) String() string {
	switch m {
	case MotionPick:
		return "PICK"
	case MotionPlaceBag:
		return "PLACE_BAG"
	case MotionFold:
		return "FOLD"
	case MotionUnfold:
		return "UNFOLD"
	default:
		return fmt.Sprintf("ArmMotion(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined motions.
func (m ArmMotion) Valid() bool {
	switch m {
	case MotionPick, MotionPlaceBag, MotionFold, MotionUnfold:
		return true
	default:
		return false
	}
}

// ParseArmMotion converts a wire name such as "PLACE_BAG" into an ArmMotion.
func ParseArmMotion(s string) (ArmMotion, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PICK":
		return MotionPick, nil
	case "PLACE_BAG":
		return MotionPlaceBag, nil
	case "FOLD":
		return MotionFold, nil
	case "UNFOLD":
		return MotionUnfold, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMotion, s)
	}
}
