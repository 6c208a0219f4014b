package lote

import "errors"

// Sentinel errors for the lote service layer.
var (
	ErrNotFound        = errors.New("lote not found")
	ErrNotRetriable    = errors.New("only failed lotes can be reprocessed")
	ErrNoActiveCatalog = errors.New("no active catalog to bind the retry to")
)
