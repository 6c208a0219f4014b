package domain

import (
	"time"
)

// FamilyCatchAll is the functional family unmatched products fall into so the
// order line is never lost, only routed to the generalist station.
const FamilyCatchAll = 6

// ProductCatalog is one immutable version of the product master data. Exactly
// one version is active at a time; lotes record the version they were
// processed against.
type ProductCatalog struct {
	Version     int        `json:"version" db:"version"`
	Active      bool       `json:"active" db:"active"`
	ActivatedAt *time.Time `json:"activated_at" db:"activated_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// CatalogProduct is a normalized product entry inside one catalog version.
type CatalogProduct struct {
	ID             string `json:"id" db:"id"`
	CatalogVersion int    `json:"catalog_version" db:"catalog_version"`
	NormName       string `json:"norm_name" db:"norm_name"`
	Family         int    `json:"family" db:"family"`
}

// RouteCatalog is one immutable version of the delivery-route master data.
type RouteCatalog struct {
	Version     int        `json:"version" db:"version"`
	Active      bool       `json:"active" db:"active"`
	ActivatedAt *time.Time `json:"activated_at" db:"activated_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// CatalogRoute is a normalized route entry inside one catalog version.
type CatalogRoute struct {
	ID             string `json:"id" db:"id"`
	CatalogVersion int    `json:"catalog_version" db:"catalog_version"`
	NormName       string `json:"norm_name" db:"norm_name"`
}
