package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/queue"
)

// delivery is one queued item: a child event, or a flush barrier that the
// delivery loop closes when it reaches it.
type delivery struct {
	event   ir.ChildEvent
	barrier chan struct{}
}

// Observation is a live child-added registration on one collection.
//
// Events are delivered one at a time, in seq order, on a goroutine owned by
// the observation. The handler never runs concurrently with itself.
type Observation struct {
	store      *Store
	collection string
	handler    ir.ChildHandler
	queue      *queue.Queue[delivery]
	after      int64 // highest updated_seq dispatched; guarded by Store.mu

	cancelled atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
}

// ObserveChildAdded registers handler for child-added events on collection.
//
// The store first replays one event per existing child in insertion order
// (Replay set), then delivers one event per child added afterwards, by this
// handle or any other writer of the database. Replay and registration happen
// under the write lock, and live dispatch skips anything the replay already
// covered, so nothing is lost or duplicated between the two phases.
//
// ctx bounds only the setup (ping and replay query). The observation lives
// until Cancel or Store.Close.
func (s *Store) ObserveChildAdded(ctx context.Context, collection string, handler ir.ChildHandler) (*Observation, error) {
	if collection == "" {
		return nil, errors.New("observe: collection is required")
	}
	if handler == nil {
		return nil, errors.New("observe: handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}

	// Bring existing observers up to date first, so the replay below cannot
	// swallow a child they have not seen yet.
	if len(s.observers) > 0 {
		if err := s.pollLocked(ctx); err != nil {
			return nil, fmt.Errorf("observe: %w", err)
		}
	}

	nodes, err := s.listLocked(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}

	obs := &Observation{
		store:      s,
		collection: collection,
		handler:    handler,
		queue:      queue.New[delivery](),
		after:      s.polled,
		done:       make(chan struct{}),
	}
	for _, n := range nodes {
		obs.queue.Enqueue(delivery{event: ir.ChildEvent{
			Collection: collection,
			Key:        n.Key,
			Value:      n.Value,
			Seq:        n.Seq,
			Replay:     true,
		}})
		obs.after = max(obs.after, n.UpdatedSeq)
	}
	if len(s.observers) == 0 {
		s.polled = max(s.polled, obs.after)
	}
	s.clock.Observe(obs.after)
	s.observers[obs] = struct{}{}

	s.logger.Debug("observation registered",
		"collection", collection,
		"replayed", len(nodes))

	go obs.run()
	return obs, nil
}

// Collection returns the observed collection name.
func (o *Observation) Collection() string {
	return o.collection
}

// Cancel stops delivery. Events still queued are dropped. Cancel is
// idempotent and safe to call from inside the handler.
//
// An event whose handler call is already in progress runs to completion;
// use Done to wait for it.
func (o *Observation) Cancel() {
	o.store.mu.Lock()
	delete(o.store.observers, o)
	o.store.mu.Unlock()
	o.stop()
}

// Flush blocks until every event queued before the call has been handed to
// the handler and the handler has returned. Returns nil immediately once the
// observation is cancelled.
func (o *Observation) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !o.queue.Enqueue(delivery{barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the delivery goroutine has exited.
func (o *Observation) Done() <-chan struct{} {
	return o.done
}

// stop marks the observation cancelled and closes its queue.
// Callers may hold Store.mu.
func (o *Observation) stop() {
	o.stopOnce.Do(func() {
		o.cancelled.Store(true)
		o.queue.Close()
	})
}

func (o *Observation) run() {
	defer close(o.done)

	for {
		if o.cancelled.Load() {
			return
		}
		if d, ok := o.queue.TryDequeue(); ok {
			if d.barrier != nil {
				close(d.barrier)
				continue
			}
			o.handler(d.event)
			continue
		}
		if _, open := <-o.queue.Wait(); !open {
			return
		}
	}
}

// changedNode is a row written after the last poll.
type changedNode struct {
	collection string
	Node
}

// pollLocked dispatches every child written since the last poll, by any
// handle, to the observers of its collection. Caller must hold s.mu.
//
// A child whose seq is past an observer's cursor is new to it and always
// notified. An older child was overwritten and is notified only when the
// store reports overwrites as adds, with the overwrite's seq.
func (s *Store) pollLocked(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, key, value, seq, updated_seq FROM nodes
		WHERE updated_seq > ?
		ORDER BY updated_seq ASC
	`, s.polled)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	var changed []changedNode
	for rows.Next() {
		var (
			c   changedNode
			raw string
		)
		if err := rows.Scan(&c.collection, &c.Key, &raw, &c.Seq, &c.UpdatedSeq); err != nil {
			rows.Close()
			return fmt.Errorf("poll: scan node: %w", err)
		}
		c.Value = []byte(raw)
		changed = append(changed, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("poll: %w", err)
	}
	rows.Close()

	for _, c := range changed {
		for obs := range s.observers {
			if obs.collection != c.collection || c.UpdatedSeq <= obs.after {
				continue
			}
			ev := ir.ChildEvent{
				Collection: c.collection,
				Key:        c.Key,
				Value:      c.Value,
				Seq:        c.Seq,
			}
			created := c.Seq > obs.after
			obs.after = c.UpdatedSeq
			switch {
			case created:
			case s.overwritesAsAdds:
				ev.Seq = c.UpdatedSeq
			default:
				continue
			}
			obs.queue.Enqueue(delivery{event: ev})
		}
		s.polled = c.UpdatedSeq
		s.clock.Observe(c.UpdatedSeq)
	}
	return nil
}

// pollLoop picks up writes from other handles until Close.
func (s *Store) pollLoop() {
	defer close(s.pollDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.pollStop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.observers) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval*4)
			if err := s.pollLocked(ctx); err != nil {
				s.logger.Warn("poll failed", "error", err)
			}
			cancel()
		}
		s.mu.Unlock()
	}
}
