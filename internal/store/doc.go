// Package store provides an SQLite-backed keyed collection store.
//
// The store plays the role of the remote database that records are synced
// through. It holds, per collection, an insertion-ordered mapping from key
// to a JSON value and exposes the operations a realtime store client does:
//
//   - Push: insert under a generated key (UUIDv7, time ordered)
//   - SetValue: full overwrite, creating the child if absent
//   - UpdateChildValues: merge fields into a child
//   - Remove: delete a child (no-op when absent)
//   - ObserveChildAdded: replay every existing child, then stream additions
//
// # Ordering
//
// Children are listed in insertion order: ORDER BY seq ASC, key ASC.
// An overwrite keeps the child's original insertion seq.
//
// Observers never see a gap or a duplicate between replay and live events:
// the replay snapshot is taken and queued under the same lock every write
// holds while notifying.
//
// # Overwrites as additions
//
// WithOverwritesAsAdds makes SetValue and UpdateChildValues on an existing
// child notify observers as if the child had been added. Some realtime
// stores behave this way, and a watcher that writes back into the collection
// it observes must survive it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
