// Package assign binds order lines to warehouse operators.
//
// Resolution order for one (client, functional code) within a shift:
// a sticky per-shift affinity first, round-robin over the qualified pool
// second. The engine is deterministic: identical pools, cursors, and call
// sequences always produce identical assignments.
//
// The Repository implementation is expected to serialize concurrent
// assignment on the same (shift, functional code); the Postgres
// implementation locks the round-robin cursor row for the duration of the
// enclosing transaction.
package assign
