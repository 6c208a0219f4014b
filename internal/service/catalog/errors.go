package catalog

import "errors"

// Sentinel errors for the catalog service layer.
var (
	ErrVersionNotFound = errors.New("catalog version not found")
	ErrNoEntries       = errors.New("catalog upload has no usable entries")
	ErrBadFamily       = errors.New("family must be between 1 and 6")
)
