package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/picker/internal/monitoring"
	"github.com/banshee-data/picker/internal/planner"
)

var (
	// ErrSlotNotFound is returned for unknown slot ids.
	ErrSlotNotFound = errors.New("slot not found")
)

var _ planner.Inventory = (*DB)(nil)

// SlotRecord is a slot with its bookkeeping columns.
type SlotRecord struct {
	planner.Slot
	ErrorCount int `json:"error_count"`
}

// StockRecord is one row of slot_stock.
type StockRecord struct {
	SlotID   string `json:"slot_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Priority int    `json:"priority"`
}

// FindSlotsBySKU returns the slots holding at least one unit of sku, by
// ascending priority and then slot id.
func (db *DB) FindSlotsBySKU(ctx context.Context, sku string) ([]planner.Slot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.x, s.y
		FROM slot_stock st
		JOIN slots s ON s.id = st.slot_id
		WHERE st.sku = ? AND st.quantity > 0
		ORDER BY st.priority ASC, s.id ASC`, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []planner.Slot
	for rows.Next() {
		var s planner.Slot
		if err := rows.Scan(&s.ID, &s.X, &s.Y); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// GetSlot looks up a slot by id.
func (db *DB) GetSlot(ctx context.Context, id string) (planner.Slot, error) {
	rec, err := db.GetSlotRecord(ctx, id)
	if err != nil {
		return planner.Slot{}, err
	}
	return rec.Slot, nil
}

// GetSlotRecord looks up a slot by id including its error count.
func (db *DB) GetSlotRecord(ctx context.Context, id string) (SlotRecord, error) {
	var rec SlotRecord
	err := db.QueryRowContext(ctx,
		`SELECT id, x, y, error_count FROM slots WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.X, &rec.Y, &rec.ErrorCount)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, fmt.Errorf("%w: %q", ErrSlotNotFound, id)
	}
	return rec, err
}

// ListSlots returns every slot ordered by id.
func (db *DB) ListSlots(ctx context.Context) ([]SlotRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, x, y, error_count FROM slots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotRecord
	for rows.Next() {
		var rec SlotRecord
		if err := rows.Scan(&rec.ID, &rec.X, &rec.Y, &rec.ErrorCount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stock returns the stock rows for a slot.
func (db *DB) Stock(ctx context.Context, slotID string) ([]StockRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT slot_id, sku, quantity, priority FROM slot_stock
		WHERE slot_id = ? ORDER BY priority, sku`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockRecord
	for rows.Next() {
		var r StockRecord
		if err := rows.Scan(&r.SlotID, &r.SKU, &r.Quantity, &r.Priority); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ItemPicked decrements the slot's stock of sku by one and journals the pick.
// The arm is authoritative: a pick the ledger did not expect is still
// journaled and the quantity stays at zero.
func (db *DB) ItemPicked(ctx context.Context, slotID, sku string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE slot_stock SET quantity = quantity - 1
		WHERE slot_id = ? AND sku = ? AND quantity > 0`, slotID, sku)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		monitoring.Logf("inventory: picked %s from slot %s with no recorded stock", sku, slotID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pick_events (event_id, slot_id, sku) VALUES (?, ?, ?)`,
		uuid.NewString(), slotID, sku,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// FlagSlotError bumps the slot's error count and journals the failure.
func (db *DB) FlagSlotError(ctx context.Context, slotID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET error_count = error_count + 1 WHERE id = ?`, slotID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %q", ErrSlotNotFound, slotID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO slot_errors (event_id, slot_id) VALUES (?, ?)`,
		uuid.NewString(), slotID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertSlot creates a slot or moves an existing one. The error count is kept.
func (db *DB) UpsertSlot(ctx context.Context, s planner.Slot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO slots (id, x, y) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET x = excluded.x, y = excluded.y`,
		s.ID, s.X, s.Y)
	return err
}

// SetStock replaces the quantity and priority of sku at a slot.
func (db *DB) SetStock(ctx context.Context, r StockRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO slot_stock (slot_id, sku, quantity, priority) VALUES (?, ?, ?, ?)
		ON CONFLICT(slot_id, sku) DO UPDATE SET quantity = excluded.quantity, priority = excluded.priority`,
		r.SlotID, r.SKU, r.Quantity, r.Priority)
	return err
}

// PickCount returns how many picks have been journaled for a slot.
func (db *DB) PickCount(ctx context.Context, slotID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pick_events WHERE slot_id = ?`, slotID).Scan(&n)
	return n, err
}
