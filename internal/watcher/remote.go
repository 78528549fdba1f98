package watcher

import (
	"context"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/store"
)

// Remote is the keyed-collection store the watcher observes and repairs.
type Remote interface {
	// ObserveChildAdded replays existing children in insertion order, then
	// delivers every child added later. Fails when the store is unreachable.
	ObserveChildAdded(ctx context.Context, collection string, handler ir.ChildHandler) (Observation, error)

	// Remove deletes a child. Removing an absent child is not an error.
	Remove(ctx context.Context, collection, key string) error

	// UpdateChildValues merges fields into a child.
	UpdateChildValues(ctx context.Context, collection, key string, fields ir.Fields) error
}

// Observation is a live child-added registration.
type Observation interface {
	// Cancel stops delivery. Idempotent.
	Cancel()

	// Flush waits until every event queued so far has been handled.
	Flush(ctx context.Context) error

	// Done is closed once no handler call is running or will start.
	Done() <-chan struct{}
}

// StoreRemote adapts a *store.Store to Remote.
func StoreRemote(s *store.Store) Remote {
	return storeRemote{s}
}

type storeRemote struct {
	*store.Store
}

func (r storeRemote) ObserveChildAdded(ctx context.Context, collection string, handler ir.ChildHandler) (Observation, error) {
	obs, err := r.Store.ObserveChildAdded(ctx, collection, handler)
	if err != nil {
		return nil, err
	}
	return obs, nil
}
