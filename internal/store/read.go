package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/querysql"
)

// Node is one stored child: its key, raw JSON value, insertion seq and the
// seq of its last write.
type Node struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Seq        int64           `json:"seq"`
	UpdatedSeq int64           `json:"updated_seq"`
}

// Record decodes the node as a record. Fails with *ir.ShapeError when the
// value is not a mapping.
func (n Node) Record() (ir.Record, error) {
	fields, err := ir.ParseFields(n.Value)
	if err != nil {
		return ir.Record{}, err
	}
	return ir.Record{Key: n.Key, Fields: fields, Seq: n.Seq}, nil
}

// Get returns the child at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, key string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Node{}, ErrClosed
	}
	return s.getLocked(ctx, collection, key)
}

// List returns every child of collection in insertion order.
func (s *Store) List(ctx context.Context, collection string) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.listLocked(ctx, collection)
}

// Count returns the number of children in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Find runs q and returns the matching children in insertion order.
func (s *Store) Find(ctx context.Context, q querysql.Select) ([]Node, error) {
	query, args, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	nodes, err := s.queryNodes(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	return nodes, nil
}

// Violations returns the mapping children of collection that break rule,
// in insertion order. It reads only; nothing is repaired.
func (s *Store) Violations(ctx context.Context, collection string, rule ir.Rule) ([]Node, error) {
	return s.Find(ctx, querysql.ViolationsOf(collection, rule))
}

func (s *Store) getLocked(ctx context.Context, collection, key string) (Node, error) {
	var (
		n   Node
		raw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, seq, updated_seq FROM nodes WHERE collection = ? AND key = ?`,
		collection, key).Scan(&n.Key, &raw, &n.Seq, &n.UpdatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return Node{}, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	n.Value = json.RawMessage(raw)
	return n, nil
}

func (s *Store) listLocked(ctx context.Context, collection string) ([]Node, error) {
	query, args, err := querysql.NewSQLCompiler().Compile(querysql.Select{Collection: collection})
	if err != nil {
		return nil, err
	}
	nodes, err := s.queryNodes(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return nodes, nil
}

func (s *Store) queryNodes(ctx context.Context, query string, args ...any) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var (
			n   Node
			raw string
		)
		if err := rows.Scan(&n.Key, &raw, &n.Seq, &n.UpdatedSeq); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Value = json.RawMessage(raw)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}
