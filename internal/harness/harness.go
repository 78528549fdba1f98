package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/store"
	"github.com/roach88/recordsync/internal/testutil"
	"github.com/roach88/recordsync/internal/watcher"
)

// runTimeout bounds a whole scenario run.
const runTimeout = 30 * time.Second

// maxSettleRounds bounds the flush loop. Each round handles the events
// produced by the previous round's repair writes.
const maxSettleRounds = 64

// Harness is the test execution engine.
// It runs one scenario against a private in-memory store with sequential
// keys, so traces are reproducible.
type Harness struct {
	store  *store.Store
	remote *tracingRemote
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Open a fresh in-memory store
//  2. Write the initial children
//  3. Subscribe a watcher and wait for the replay to settle
//  4. Optionally unsubscribe, then write the live children and settle again
//  5. Unsubscribe, collect the trace and check expectations
//
// A returned error means the scenario could not run. Expectation
// mismatches are reported in Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	rules, err := scenario.CompileRules()
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	opts := []store.Option{
		store.WithKeyGenerator(testutil.NewSequentialKeys("k")),
		store.WithLogger(logger),
	}
	if scenario.OverwritesAsAdds {
		opts = append(opts, store.WithOverwritesAsAdds())
	}
	st, err := store.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		remote: &tracingRemote{inner: watcher.StoreRemote(st)},
		logger: logger,
	}
	collection := scenario.CollectionName()

	if err := h.write(ctx, collection, "initial", scenario.Initial); err != nil {
		return nil, err
	}

	wopts := []watcher.Option{
		watcher.WithReporter(h.remote.report),
		watcher.WithLogger(logger),
	}
	if rules != nil {
		wopts = append(wopts, watcher.WithRules(rules))
	}
	w, err := watcher.New(h.remote, wopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	sub, err := w.Subscribe(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	if err := h.settle(ctx, sub); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	if scenario.UnsubscribeBeforeLive {
		sub.Unsubscribe()
	}

	if err := h.write(ctx, collection, "live", scenario.Live); err != nil {
		return nil, err
	}
	if err := h.settle(ctx, sub); err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}

	// Drain queued writes before reading the trace.
	sub.Unsubscribe()

	result := NewResult()
	result.Trace, result.Anomalies = h.remote.snapshot()

	nodes, err := st.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	for _, n := range nodes {
		result.Remaining = append(result.Remaining, n.Key)
	}

	for _, msg := range CheckExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}

	return result, nil
}

// write stores children in order. An empty key pushes.
func (h *Harness) write(ctx context.Context, collection, phase string, children []Child) error {
	for i, c := range children {
		var err error
		if c.Key == "" {
			_, err = h.store.Push(ctx, collection, c.Value)
		} else {
			err = h.store.SetValue(ctx, collection, c.Key, c.Value)
		}
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", phase, i, err)
		}
	}
	return nil
}

// settle flushes the subscription until a round produces no new writes.
func (h *Harness) settle(ctx context.Context, sub *watcher.Subscription) error {
	for i := 0; i < maxSettleRounds; i++ {
		before := h.store.LastSeq()
		if err := sub.Flush(ctx); err != nil {
			return err
		}
		if h.store.LastSeq() == before {
			return nil
		}
	}
	return fmt.Errorf("store did not settle after %d rounds", maxSettleRounds)
}

// tracingRemote records what the watcher observes and writes.
//
// Writes run on the watcher's writer goroutine, so they are recorded
// separately and paired with anomalies by position: every reported anomaly
// queues exactly one write, in report order.
type tracingRemote struct {
	inner watcher.Remote

	mu     sync.Mutex
	steps  []step
	writes []writeCall
}

type step struct {
	event   ir.ChildEvent
	anomaly *ir.Anomaly
}

type writeCall struct {
	action ir.Action
	key    string
	patch  ir.Fields
	err    error
}

func (r *tracingRemote) ObserveChildAdded(ctx context.Context, collection string, handler ir.ChildHandler) (watcher.Observation, error) {
	return r.inner.ObserveChildAdded(ctx, collection, func(e ir.ChildEvent) {
		r.mu.Lock()
		r.steps = append(r.steps, step{event: e})
		r.mu.Unlock()
		handler(e)
	})
}

func (r *tracingRemote) Remove(ctx context.Context, collection, key string) error {
	err := r.inner.Remove(ctx, collection, key)
	r.record(writeCall{action: ir.ActionRemove, key: key, err: err})
	return err
}

func (r *tracingRemote) UpdateChildValues(ctx context.Context, collection, key string, fields ir.Fields) error {
	err := r.inner.UpdateChildValues(ctx, collection, key, fields)
	r.record(writeCall{action: ir.ActionPatch, key: key, patch: fields.Clone(), err: err})
	return err
}

func (r *tracingRemote) record(w writeCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, w)
}

// report is the watcher's Reporter. It runs inside the handler of the
// step appended last.
func (r *tracingRemote) report(a ir.Anomaly) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		return
	}
	r.steps[len(r.steps)-1].anomaly = &a
}

// snapshot builds the ordered trace and the anomaly list.
func (r *tracingRemote) snapshot() ([]TraceEvent, []ir.Anomaly) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trace := []TraceEvent{}
	anomalies := []ir.Anomaly{}
	next := 0
	for _, s := range r.steps {
		trace = append(trace, TraceEvent{
			Type:   EventObserved,
			Key:    s.event.Key,
			Seq:    s.event.Seq,
			Replay: s.event.Replay,
		})
		if s.anomaly == nil {
			continue
		}
		a := *s.anomaly
		anomalies = append(anomalies, a)
		trace = append(trace, TraceEvent{
			Type:   EventAnomaly,
			Key:    a.ID,
			Seq:    a.Seq,
			Reason: a.Reason,
			Rule:   a.RuleID,
		})
		if next >= len(r.writes) {
			continue
		}
		w := r.writes[next]
		next++
		ev := TraceEvent{Type: EventRemove, Key: w.key, Seq: a.Seq}
		if w.action == ir.ActionPatch {
			ev.Type = EventPatch
			ev.Patch = w.patch
		}
		if w.err != nil {
			ev.Error = w.err.Error()
		}
		trace = append(trace, ev)
	}
	return trace, anomalies
}
