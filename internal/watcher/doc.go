// Package watcher implements the record sync watcher.
//
// A Watcher subscribes to child-added events of one collection in a Remote
// store, checks every delivered record against an ordered rule list and
// repairs violations. The default rule requires a non-null addedBy field and
// repairs by deleting the record.
//
// Per event:
//   - a payload that is not a mapping is a shape mismatch: logged
//     at debug level, counted and skipped
//   - the first violated rule decides the repair (remove or patch); the
//     repair is queued as a fire-and-forget write and an Anomaly is reported
//   - a record satisfying every rule is left alone
//
// Writes never block event handling. Each subscription owns a FIFO write
// queue drained by one writer goroutine. A failed write is a write failure:
// logged and counted, never retried and never surfaced to the reporter.
//
// Repairs cannot re-trigger themselves. Removals are not child-added
// events, patch rules must assign every field they require, and a repair
// guard refuses to patch the same payload of the same key twice in a row.
//
// Thread-safety model:
//   - Subscribe: safe from any goroutine
//   - Reporter: called on the store's delivery goroutine, in event order
//   - Unsubscribe: safe from any goroutine except the Reporter itself
package watcher
