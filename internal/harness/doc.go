// Package harness runs watcher conformance scenarios.
//
// A scenario seeds a collection, subscribes a watcher, writes live records
// and checks which records were reported and which survived.
//
// # Scenario Format
//
//	name: missing_added_by
//	description: "Records without addedBy are removed"
//	collection: shoppingCartItems      # optional
//	overwrites_as_adds: false          # optional
//	rules:                             # optional, default: require addedBy, remove
//	  - id: fill-added-by
//	    require: [addedBy]
//	    action: patch
//	    patch: { addedBy: "unknown" }
//	initial:
//	  - value: { name: "Shoes", price: 29.99, sku: 1, quantity: 1 }
//	live:
//	  - key: custom-key
//	    value: { name: "Hat", addedBy: "alice" }
//	unsubscribe_before_live: false
//	expect:
//	  anomalies: [k1]
//	  remaining: [custom-key]
//
// Children without a key are pushed and get k1, k2, ... in write order.
//
// # Deterministic Testing
//
// Every run uses a private in-memory SQLite store and sequential keys, and
// waits for the watcher to settle between phases, so the trace of a
// scenario is identical across runs and can be compared with a golden file
// (see RunWithGolden).
package harness
