// Package layout reads warehouse layout files: the slots on the grid, what
// each one stocks, and which slot receives finished bags.
package layout

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for layouts that parse but do not make sense.
var ErrInvalid = errors.New("invalid layout")

type Layout struct {
	BaggingSlot string `yaml:"bagging_slot"`
	Slots       []Slot `yaml:"slots"`
}

type Slot struct {
	ID    string  `yaml:"id"`
	X     int     `yaml:"x"`
	Y     int     `yaml:"y"`
	Stock []Stock `yaml:"stock,omitempty"`
}

// Stock is one SKU held at a slot. Lower priority values are tried first.
type Stock struct {
	SKU      string `yaml:"sku"`
	Quantity int    `yaml:"quantity"`
	Priority int    `yaml:"priority"`
}

// Load reads and validates a layout file.
func Load(path string) (*Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse decodes a layout document. Unknown keys are rejected so that typos
// do not silently drop stock.
func Parse(b []byte) (*Layout, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var l Layout
	if err := dec.Decode(&l); err != nil {
		return nil, err
	}
	l.Normalize()
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Normalize trims identifiers.
func (l *Layout) Normalize() {
	l.BaggingSlot = strings.TrimSpace(l.BaggingSlot)
	for i := range l.Slots {
		s := &l.Slots[i]
		s.ID = strings.TrimSpace(s.ID)
		for j := range s.Stock {
			s.Stock[j].SKU = strings.TrimSpace(s.Stock[j].SKU)
		}
	}
}

// Validate checks ids are present and unique, quantities are not negative,
// and the bagging slot exists.
func (l *Layout) Validate() error {
	seen := make(map[string]bool, len(l.Slots))
	for i, s := range l.Slots {
		if s.ID == "" {
			return fmt.Errorf("%w: slot %d has no id", ErrInvalid, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate slot id %q", ErrInvalid, s.ID)
		}
		seen[s.ID] = true

		skus := make(map[string]bool, len(s.Stock))
		for _, st := range s.Stock {
			if st.SKU == "" {
				return fmt.Errorf("%w: slot %q has stock without a sku", ErrInvalid, s.ID)
			}
			if skus[st.SKU] {
				return fmt.Errorf("%w: slot %q lists sku %q twice", ErrInvalid, s.ID, st.SKU)
			}
			skus[st.SKU] = true
			if st.Quantity < 0 {
				return fmt.Errorf("%w: slot %q sku %q has negative quantity", ErrInvalid, s.ID, st.SKU)
			}
		}
	}
	if l.BaggingSlot == "" {
		return fmt.Errorf("%w: bagging_slot is required", ErrInvalid)
	}
	if !seen[l.BaggingSlot] {
		return fmt.Errorf("%w: bagging slot %q is not in slots", ErrInvalid, l.BaggingSlot)
	}
	return nil
}

// Slot returns the slot with the given id.
func (l *Layout) Slot(id string) (Slot, bool) {
	for _, s := range l.Slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}
