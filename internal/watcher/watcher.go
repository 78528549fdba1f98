package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/queue"
)

// DefaultWriteTimeout bounds each repair write.
const DefaultWriteTimeout = 10 * time.Second

// Reporter receives one Anomaly per repaired record, in event order.
// It runs on the delivery goroutine and must not call Unsubscribe.
type Reporter func(ir.Anomaly)

// State is the lifecycle state of a subscription handle.
type State int

const (
	// Unsubscribed is the initial and terminal state.
	Unsubscribed State = iota
	// Subscribed means events are being delivered and repaired.
	Subscribed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

// Watcher validates records of a Remote against an ordered rule list.
//
// INVARIANTS:
//   - rules order NEVER changes after construction
//   - rule IDs are unique
type Watcher struct {
	remote       Remote
	rules        []ir.Rule
	reporter     Reporter
	logger       *slog.Logger
	metrics      Metrics
	writeTimeout time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithRules replaces the default rule set. The slice is copied.
func WithRules(rules []ir.Rule) Option {
	return func(w *Watcher) {
		w.rules = append([]ir.Rule(nil), rules...)
	}
}

// WithReporter sets the anomaly callback.
func WithReporter(r Reporter) Option {
	return func(w *Watcher) {
		w.reporter = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithMetrics sets the counter sink.
func WithMetrics(m Metrics) Option {
	return func(w *Watcher) {
		w.metrics = m
	}
}

// WithWriteTimeout bounds each repair write.
// Default: 10s (DefaultWriteTimeout).
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		w.writeTimeout = d
	}
}

// New creates a Watcher over remote. Without WithRules the watcher enforces
// ir.DefaultRules. Returns an error when the rule set is invalid.
func New(remote Remote, opts ...Option) (*Watcher, error) {
	if remote == nil {
		return nil, errors.New("watcher: remote is required")
	}

	w := &Watcher{
		remote:       remote,
		rules:        ir.DefaultRules(),
		logger:       slog.Default(),
		metrics:      nopMetrics{},
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := ir.ValidateRules(w.rules); err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}

	return w, nil
}

// Rules returns a copy of the rule set in evaluation order.
func (w *Watcher) Rules() []ir.Rule {
	return append([]ir.Rule(nil), w.rules...)
}

// writeOp is one queued repair write, or a flush barrier.
type writeOp struct {
	Action ir.Action
	RuleID string
	Key    string
	Patch  ir.Fields // ActionPatch only

	barrier chan struct{}
}

// Subscription is the handle of one Subscribe call.
type Subscription struct {
	watcher    *Watcher
	collection string
	rules      []ir.Rule // rules applying to collection, in order
	obs        Observation
	writes     *queue.Queue[writeOp] // drained by runWriter, backlog kept on Close
	guard      *repairGuard
	writerDone chan struct{}

	mu    sync.Mutex // Held while handling an event; Unsubscribe takes it to stop delivery
	state State
}

// Subscribe starts watching collection.
//
// Every existing record is replayed through the rules in insertion order,
// then every record added later. Fails with a connection error when the
// remote is unreachable; nothing is observed or written in that case.
func (w *Watcher) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	if collection == "" {
		return nil, errors.New("subscribe: collection is required")
	}

	sub := &Subscription{
		watcher:    w,
		collection: collection,
		writes:     queue.New[writeOp](),
		guard:      newRepairGuard(),
		writerDone: make(chan struct{}),
	}
	for _, r := range w.rules {
		if r.Applies(collection) {
			sub.rules = append(sub.rules, r)
		}
	}

	// Hold the handle lock until obs and state are set so replayed events
	// wait for the subscription to be fully initialized.
	sub.mu.Lock()
	obs, err := w.remote.ObserveChildAdded(ctx, collection, sub.handle)
	if err != nil {
		sub.mu.Unlock()
		w.logger.Error("subscribe failed",
			"collection", collection,
			"error", err)
		return nil, NewConnectionError(collection, err)
	}
	sub.obs = obs
	sub.state = Subscribed
	sub.mu.Unlock()

	go sub.runWriter()

	w.logger.Info("subscribed",
		"collection", collection,
		"rules", len(sub.rules))

	return sub, nil
}

// Collection returns the watched collection.
func (s *Subscription) Collection() string {
	return s.collection
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Unsubscribe stops delivery, waits for a handler call in progress to return
// and for already-queued repair writes to finish. Once it returns the
// subscription causes no further side effects. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.state == Unsubscribed {
		s.mu.Unlock()
		<-s.writerDone
		return
	}
	s.state = Unsubscribed
	s.mu.Unlock()

	s.obs.Cancel()
	<-s.obs.Done()
	s.writes.Close()
	<-s.writerDone

	s.watcher.logger.Info("unsubscribed", "collection", s.collection)
}

// Flush waits until every event delivered so far has been handled and every
// repair it queued has been written. Used by tests and the scenario harness.
func (s *Subscription) Flush(ctx context.Context) error {
	if s.State() != Subscribed {
		return nil
	}
	if err := s.obs.Flush(ctx); err != nil {
		return err
	}

	barrier := make(chan struct{})
	if !s.writes.Enqueue(writeOp{barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-s.writerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle processes one child-added event.
func (s *Subscription) handle(e ir.ChildEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Subscribed {
		return
	}

	w := s.watcher
	w.metrics.EventObserved(s.collection)

	fields, err := ir.ParseFields(e.Value)
	if err != nil {
		w.metrics.ShapeMismatch(s.collection)
		w.logger.Debug("skipping record",
			"error", NewShapeMismatch(s.collection, e.Key, err))
		return
	}

	for _, rule := range s.rules {
		reason, violated := rule.Check(fields)
		if !violated {
			continue
		}
		s.repair(e, rule, reason, fields)
		return
	}

	s.guard.Clear(e.Key)
}

// repair queues the write for the first violated rule and reports it.
// Caller must hold s.mu.
func (s *Subscription) repair(e ir.ChildEvent, rule ir.Rule, reason string, fields ir.Fields) {
	w := s.watcher

	op := writeOp{Action: rule.Action, RuleID: rule.ID, Key: e.Key}
	if rule.Action == ir.ActionPatch {
		hash, err := ir.RepairHash(rule.ID, e.Key, fields)
		if err != nil {
			w.logger.Warn("repair hash failed",
				"collection", s.collection,
				"key", e.Key,
				"error", err)
		} else {
			if s.guard.WouldRepeat(e.Key, hash) {
				w.metrics.RepairSkipped(s.collection, rule.ID)
				w.logger.Warn("patch did not take, not repeating",
					"collection", s.collection,
					"key", e.Key,
					"rule", rule.ID)
				return
			}
			s.guard.Record(e.Key, hash)
		}
		op.Patch = rule.Patch.Clone()
	} else {
		s.guard.Clear(e.Key)
	}

	s.writes.Enqueue(op)

	anomaly := ir.Anomaly{
		Collection: s.collection,
		ID:         e.Key,
		Reason:     reason,
		RuleID:     rule.ID,
		Action:     rule.Action,
		Seq:        e.Seq,
	}
	w.metrics.AnomalyReported(s.collection, rule.ID, rule.Action)
	w.logger.Info("anomaly",
		"collection", s.collection,
		"id", e.Key,
		"reason", reason,
		"rule", rule.ID,
		"action", string(rule.Action),
		"replay", e.Replay)

	if w.reporter != nil {
		w.reporter(anomaly)
	}
}

// runWriter drains the write queue until it is closed and empty.
func (s *Subscription) runWriter() {
	defer close(s.writerDone)

	for {
		if op, ok := s.writes.TryDequeue(); ok {
			if op.barrier != nil {
				close(op.barrier)
				continue
			}
			s.write(op)
			continue
		}
		if _, open := <-s.writes.Wait(); !open {
			// Closed: drain what is left, then exit.
			for {
				op, ok := s.writes.TryDequeue()
				if !ok {
					return
				}
				if op.barrier != nil {
					close(op.barrier)
					continue
				}
				s.write(op)
			}
		}
	}
}

// write applies one repair. Failures are logged and counted only.
func (s *Subscription) write(op writeOp) {
	w := s.watcher
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	var err error
	switch op.Action {
	case ir.ActionPatch:
		err = w.remote.UpdateChildValues(ctx, s.collection, op.Key, op.Patch)
	default:
		err = w.remote.Remove(ctx, s.collection, op.Key)
	}

	if err != nil {
		w.metrics.WriteFailed(s.collection, op.Action)
		w.logger.Error("repair write failed",
			"error", NewWriteFailure(s.collection, op.Key, op.Action, err),
			"rule", op.RuleID)
		return
	}

	w.metrics.WriteCompleted(s.collection, op.Action)
	w.logger.Debug("repair written",
		"collection", s.collection,
		"key", op.Key,
		"action", string(op.Action))
}
