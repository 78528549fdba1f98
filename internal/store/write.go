package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/recordsync/internal/ir"
)

// ErrNotMapping is returned by UpdateChildValues when the existing child is
// not a JSON object and cannot be merged into.
var ErrNotMapping = errors.New("child is not a mapping")

// Push stores value under a freshly generated key and returns the key.
// Pushed keys are fresh, so observers always receive a child-added event.
func (s *Store) Push(ctx context.Context, collection string, value any) (string, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return "", fmt.Errorf("push: %w", err)
	}
	key, err := s.keys.Generate()
	if err != nil {
		return "", fmt.Errorf("push: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.putLocked(ctx, collection, key, raw); err != nil {
		return "", fmt.Errorf("push: %w", err)
	}
	return key, nil
}

// SetValue overwrites the child at key with value, creating it if absent.
//
// value may be json.RawMessage (stored as-is after validation, so primitive
// payloads are possible), ir.Fields, a map, or a scalar.
func (s *Store) SetValue(ctx context.Context, collection, key string, value any) error {
	raw, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("set value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.putLocked(ctx, collection, key, raw); err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	return nil
}

// UpdateChildValues merges fields into the child at key. A missing child is
// created from fields alone.
func (s *Store) UpdateChildValues(ctx context.Context, collection, key string, fields ir.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	merged := fields
	existing, err := s.getLocked(ctx, collection, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("update child values: %w", err)
	default:
		current, perr := ir.ParseFields(existing.Value)
		if perr != nil {
			return fmt.Errorf("update child values %s/%s: %w", collection, key, ErrNotMapping)
		}
		merged = current.Merge(fields)
	}

	raw, err := ir.MarshalCanonical(merged)
	if err != nil {
		return fmt.Errorf("update child values: %w", err)
	}
	if _, err := s.putLocked(ctx, collection, key, raw); err != nil {
		return fmt.Errorf("update child values: %w", err)
	}
	return nil
}

// Remove deletes the child at key. Removing an absent child is a no-op.
// Removals are never notified to child-added observers.
func (s *Store) Remove(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	s.clock.Observe(seq)
	return nil
}

// putLocked writes raw at key and notifies observers. Caller must hold s.mu.
//
// A new child keeps its seq forever; an overwrite only bumps updated_seq.
// Observers are notified when the child is new, or on any overwrite when the
// store reports overwrites as adds. Pushed keys are always new.
func (s *Store) putLocked(ctx context.Context, collection, key string, raw json.RawMessage) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if collection == "" || key == "" {
		return 0, errors.New("collection and key are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	defer tx.Rollback()

	// Take the clock first so the transaction holds the write lock before
	// it reads anything.
	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return 0, err
	}

	var existingSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT seq FROM nodes WHERE collection = ? AND key = ?`, collection, key).Scan(&existingSeq)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return 0, fmt.Errorf("lookup %s/%s: %w", collection, key, err)
	}

	if created {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (collection, key, value, seq, updated_seq)
			VALUES (?, ?, ?, ?, ?)
		`, collection, key, string(raw), seq, seq)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE nodes SET value = ?, updated_seq = ?
			WHERE collection = ? AND key = ?
		`, string(raw), seq, collection, key)
	}
	if err != nil {
		return 0, fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	s.clock.Observe(seq)

	if len(s.observers) > 0 {
		if err := s.pollLocked(ctx); err != nil {
			s.logger.Warn("notify observers failed",
				"collection", collection,
				"key", key,
				"error", err)
		}
	}

	return seq, nil
}

// encodeValue converts a write payload to the JSON text stored in a node.
func encodeValue(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON payload")
		}
		out := make(json.RawMessage, len(v))
		copy(out, v)
		return out, nil
	case ir.Record:
		return ir.MarshalCanonical(v.Fields)
	default:
		raw, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
}
