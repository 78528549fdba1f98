package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/store"
	"github.com/roach88/recordsync/internal/testutil"
)

const cartCollection = "shoppingCartItems"

// writeCall is one repair write seen by spyRemote.
type writeCall struct {
	Action ir.Action
	Key    string
	Patch  ir.Fields
}

// spyRemote records repair writes before forwarding them to a real store.
type spyRemote struct {
	Remote

	mu       sync.Mutex
	calls    []writeCall
	failNext error // returned (once per call) instead of writing when set
	failAll  bool
}

func newSpyRemote(s *store.Store) *spyRemote {
	return &spyRemote{Remote: StoreRemote(s)}
}

func (r *spyRemote) Remove(ctx context.Context, collection, key string) error {
	if err := r.record(writeCall{Action: ir.ActionRemove, Key: key}); err != nil {
		return err
	}
	return r.Remote.Remove(ctx, collection, key)
}

func (r *spyRemote) UpdateChildValues(ctx context.Context, collection, key string, fields ir.Fields) error {
	if err := r.record(writeCall{Action: ir.ActionPatch, Key: key, Patch: fields}); err != nil {
		return err
	}
	return r.Remote.UpdateChildValues(ctx, collection, key, fields)
}

func (r *spyRemote) record(c writeCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	if r.failAll {
		return errors.New("permission denied")
	}
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	return nil
}

func (r *spyRemote) Calls() []writeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]writeCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *spyRemote) Keys(action ir.Action) []string {
	var keys []string
	for _, c := range r.Calls() {
		if c.Action == action {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// unreachableRemote fails every subscribe.
type unreachableRemote struct{}

func (unreachableRemote) ObserveChildAdded(context.Context, string, ir.ChildHandler) (Observation, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (unreachableRemote) Remove(context.Context, string, string) error {
	return errors.New("unreachable")
}

func (unreachableRemote) UpdateChildValues(context.Context, string, string, ir.Fields) error {
	return errors.New("unreachable")
}

// cartItem returns a valid-shaped cart record, optionally with addedBy.
func cartItem(name string, price float64, sku int64, addedBy string) ir.Fields {
	f := ir.Fields{
		"name":     ir.String(name),
		"price":    ir.Number(price),
		"sku":      ir.Int(sku),
		"quantity": ir.Int(1),
	}
	if addedBy != "" {
		f[ir.FieldAddedBy] = ir.String(addedBy)
	}
	return f
}

// flush waits until sub has handled and written everything so far.
func flush(t *testing.T, sub *Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sub.Flush(ctx))
}

// fixture bundles a store, spy and recorder.
type fixture struct {
	store    *store.Store
	remote   *spyRemote
	recorder *testutil.AnomalyRecorder
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	s := testutil.OpenStore(t, opts...)
	return &fixture{
		store:    s,
		remote:   newSpyRemote(s),
		recorder: &testutil.AnomalyRecorder{},
	}
}

func (f *fixture) watcher(t *testing.T, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithReporter(f.recorder.Report)}, opts...)
	w, err := New(f.remote, opts...)
	require.NoError(t, err)
	return w
}

func (f *fixture) set(t *testing.T, key string, value any) {
	t.Helper()
	require.NoError(t, f.store.SetValue(context.Background(), cartCollection, key, value))
}
