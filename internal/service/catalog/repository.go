package catalog

import (
	"context"
	"time"

	"github.com/delsur/comandero/internal/domain"
)

// Entry is one already-normalized product row of an uploaded version.
type Entry struct {
	NormName string
	Family   int
}

// Repository defines the data access contract for catalog versions. Version
// creation and activation are atomic: either the whole version lands (rows
// included) or nothing does.
type Repository interface {
	// CreateProductsVersion inserts the next product version with its
	// entries and returns the assigned version number.
	CreateProductsVersion(ctx context.Context, entries []Entry) (int, error)

	// CreateRoutesVersion inserts the next route version with its entries
	// and returns the assigned version number.
	CreateRoutesVersion(ctx context.Context, normNames []string) (int, error)

	// ActivateProducts flips the active product version. Returns the entry
	// count of the activated version, or ErrVersionNotFound.
	ActivateProducts(ctx context.Context, version int, at time.Time) (int, error)

	// ActivateRoutes flips the active route version. Returns the entry
	// count of the activated version, or ErrVersionNotFound.
	ActivateRoutes(ctx context.Context, version int, at time.Time) (int, error)

	// ProductVersions lists every product version, newest first.
	ProductVersions(ctx context.Context) ([]domain.ProductCatalog, error)

	// RouteVersions lists every route version, newest first.
	RouteVersions(ctx context.Context) ([]domain.RouteCatalog, error)

	// EntryCounts returns the entry counts of the given versions. A missing
	// version counts as zero.
	EntryCounts(ctx context.Context, productsVersion, routesVersion int) (products, routes int, err error)
}
