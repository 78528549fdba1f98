// Package ir provides the shared record, rule and event types for recordsync.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Record fields hold scalars (string, integer, number, bool, null);
//     nested members are kept as Opaque canonical JSON
//   - Integers and non-integral numbers are distinct types (Int vs Number)
//   - A field holding Null counts as absent for validation
//   - All JSON tags use snake_case
package ir
