package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

// Clock is this handle's view of the shared write clock: the highest seq it
// has written or observed.
//
// Seq values themselves come from the clock table, so handles in different
// processes never hand out the same seq. Events and insertion order use
// these values, never wall-clock timestamps.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock that has already seen start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Observe raises the clock to seq. Lower values are ignored.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Current returns the highest seq seen.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// nextSeq takes the next value of the shared clock inside tx.
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE clock SET seq = seq + 1 WHERE id = 1 RETURNING seq`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// readClock returns the current value of the shared clock.
func readClock(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	if err := db.QueryRowContext(ctx, `SELECT seq FROM clock WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return seq, nil
}
