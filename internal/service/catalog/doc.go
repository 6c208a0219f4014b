// Package catalog manages the versioned product and route master data.
// Versions are immutable once created; exactly one version of each kind is
// active at a time, and activation is the only mutation. Lotes record the
// versions they were processed against, so a version can never be deleted
// out from under history.
package catalog
