// Package shift implements the shift lifecycle: opening against a schedule,
// manual close, scheduler-driven auto close, and the per-shift configuration
// the dispatch pipeline reads (operator qualifications, route collectors).
//
// Opening a shift is the system's heaviest transition: it runs carryover of
// the previous shift's unprinted work and then forces one mailbox poll so the
// new shift starts with a complete queue. Both steps happen after the shift
// row is committed; their failures are logged, never propagated, because the
// shift is already live.
package shift
