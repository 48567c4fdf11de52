package db

import (
	"context"
	"fmt"

	"github.com/banshee-data/picker/internal/layout"
)

// ImportLayout upserts every slot and stock row in l in one transaction.
// Slots and stock not mentioned in l are left alone.
func (db *DB) ImportLayout(ctx context.Context, l *layout.Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range l.Slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO slots (id, x, y) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET x = excluded.x, y = excluded.y`,
			s.ID, s.X, s.Y,
		); err != nil {
			return fmt.Errorf("import slot %q: %w", s.ID, err)
		}
		for _, st := range s.Stock {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO slot_stock (slot_id, sku, quantity, priority) VALUES (?, ?, ?, ?)
				ON CONFLICT(slot_id, sku) DO UPDATE SET quantity = excluded.quantity, priority = excluded.priority`,
				s.ID, st.SKU, st.Quantity, st.Priority,
			); err != nil {
				return fmt.Errorf("import stock %q at slot %q: %w", st.SKU, s.ID, err)
			}
		}
	}
	return tx.Commit()
}
