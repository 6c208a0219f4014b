// Package lote orchestrates the processing of one ingested email: route
// resolution, body parsing, product matching, operator assignment, and the
// final status write. Everything lands in a single serializable transaction;
// the route-state recomputation runs after commit.
//
// Processing is idempotent: an already-OK lote is a no-op, and failed lotes
// can be reset and re-driven (optionally against the catalogs active at
// retry time instead of the ones bound at first processing).
package lote
