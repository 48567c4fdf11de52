package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/picker/internal/planner"
)

// Line outcomes stored in fulfilment_lines.
const (
	outcomePicked      = "picked"
	outcomeUnfulfilled = "unfulfilled"
	outcomeFlagged     = "flagged"
)

// DefaultRecentLimit bounds RecentFulfilments when no limit is given.
const DefaultRecentLimit = 50

// Fulfilment is a journaled order result.
type Fulfilment struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Complete   bool      `json:"complete"`
	planner.Result
}

// RecordFulfilment journals res and returns the new entry's id.
func (db *DB) RecordFulfilment(ctx context.Context, res planner.Result) (string, error) {
	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fulfilments (fulfilment_id, order_id, attempts, complete, recorded_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		id, res.OrderID, res.Attempts, res.Complete(), db.clock.Now().UnixNano(),
	); err != nil {
		return "", err
	}

	line := 0
	insert := func(outcome, sku, slotID string) error {
		line++
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fulfilment_lines (fulfilment_id, line_no, outcome, sku, slot_id)
			VALUES (?, ?, ?, ?, ?)`, id, line, outcome, sku, slotID)
		return err
	}
	for _, p := range res.Picks {
		if err := insert(outcomePicked, p.SKU, p.SlotID); err != nil {
			return "", err
		}
	}
	for _, sku := range res.Unfulfilled {
		if err := insert(outcomeUnfulfilled, sku, ""); err != nil {
			return "", err
		}
	}
	for _, slotID := range res.FlaggedSlots {
		if err := insert(outcomeFlagged, "", slotID); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// RecentFulfilments returns up to limit journal entries, newest first.
func (db *DB) RecentFulfilments(ctx context.Context, limit int) ([]Fulfilment, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT fulfilment_id, order_id, attempts, complete, recorded_unix_nanos
		FROM fulfilments
		ORDER BY recorded_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	var out []Fulfilment
	for rows.Next() {
		var (
			f     Fulfilment
			nanos int64
		)
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Attempts, &f.Complete, &nanos); err != nil {
			rows.Close()
			return nil, err
		}
		f.RecordedAt = time.Unix(0, nanos).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// single connection: lines are loaded after the outer cursor is released
	for i := range out {
		if err := db.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *DB) loadLines(ctx context.Context, f *Fulfilment) error {
	rows, err := db.QueryContext(ctx, `
		SELECT outcome, sku, slot_id FROM fulfilment_lines
		WHERE fulfilment_id = ? ORDER BY line_no`, f.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome, sku, slotID string
		if err := rows.Scan(&outcome, &sku, &slotID); err != nil {
			return err
		}
		switch outcome {
		case outcomePicked:
			f.Picks = append(f.Picks, planner.Pick{SKU: sku, SlotID: slotID})
		case outcomeUnfulfilled:
			f.Unfulfilled = append(f.Unfulfilled, sku)
		case outcomeFlagged:
			f.FlaggedSlots = append(f.FlaggedSlots, slotID)
		}
	}
	return rows.Err()
}
