package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/service/catalog"
)

// CatalogRepo persists catalog versions. It holds the pool directly because
// version creation and activation are multi-statement and must be atomic.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo creates a catalog repository.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// CreateProductsVersion inserts the next product version with its entries.
func (r *CatalogRepo) CreateProductsVersion(ctx context.Context, entries []catalog.Entry) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin products version: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO product_catalogs (version)
		VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM product_catalogs))
		RETURNING version
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert products version: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_products (id, catalog_version, norm_name, family)
			VALUES ($1, $2, $3, $4)
		`, uuid.New().String(), version, e.NormName, e.Family); err != nil {
			return 0, fmt.Errorf("insert catalog product: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit products version: %w", err)
	}
	return version, nil
}

// CreateRoutesVersion inserts the next route version with its entries.
func (r *CatalogRepo) CreateRoutesVersion(ctx context.Context, normNames []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin routes version: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO route_catalogs (version)
		VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM route_catalogs))
		RETURNING version
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert routes version: %w", err)
	}

	for _, name := range normNames {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_routes (id, catalog_version, norm_name)
			VALUES ($1, $2, $3)
		`, uuid.New().String(), version, name); err != nil {
			return 0, fmt.Errorf("insert catalog route: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit routes version: %w", err)
	}
	return version, nil
}

// ActivateProducts flips the active product version and returns its entry
// count.
func (r *CatalogRepo) ActivateProducts(ctx context.Context, version int, at time.Time) (int, error) {
	return r.activate(ctx, "product_catalogs", "catalog_products", version, at)
}

// ActivateRoutes flips the active route version and returns its entry count.
func (r *CatalogRepo) ActivateRoutes(ctx context.Context, version int, at time.Time) (int, error) {
	return r.activate(ctx, "route_catalogs", "catalog_routes", version, at)
}

func (r *CatalogRepo) activate(ctx context.Context, versionTable, entryTable string, version int, at time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin activate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE `+versionTable+` SET active = FALSE WHERE active`); err != nil {
		return 0, fmt.Errorf("clear active version: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE `+versionTable+` SET active = TRUE, activated_at = $2 WHERE version = $1`,
		version, at)
	if err != nil {
		return 0, fmt.Errorf("set active version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set active version rows: %w", err)
	}
	if n == 0 {
		return 0, catalog.ErrVersionNotFound
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+entryTable+` WHERE catalog_version = $1`, version).Scan(&count); err != nil {
		return 0, fmt.Errorf("count version entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit activate: %w", err)
	}
	return count, nil
}

// ProductVersions lists every product version, newest first.
func (r *CatalogRepo) ProductVersions(ctx context.Context) ([]domain.ProductCatalog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, active, activated_at, created_at
		FROM product_catalogs ORDER BY version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list product versions: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductCatalog
	for rows.Next() {
		var c domain.ProductCatalog
		if err := rows.Scan(&c.Version, &c.Active, &c.ActivatedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product version: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RouteVersions lists every route version, newest first.
func (r *CatalogRepo) RouteVersions(ctx context.Context) ([]domain.RouteCatalog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, active, activated_at, created_at
		FROM route_catalogs ORDER BY version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list route versions: %w", err)
	}
	defer rows.Close()

	var out []domain.RouteCatalog
	for rows.Next() {
		var c domain.RouteCatalog
		if err := rows.Scan(&c.Version, &c.Active, &c.ActivatedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan route version: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EntryCounts returns the entry counts of the given versions.
func (r *CatalogRepo) EntryCounts(ctx context.Context, productsVersion, routesVersion int) (int, int, error) {
	var products, routes int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM catalog_products WHERE catalog_version = $1),
			(SELECT COUNT(*) FROM catalog_routes WHERE catalog_version = $2)
	`, productsVersion, routesVersion).Scan(&products, &routes)
	if err != nil {
		return 0, 0, fmt.Errorf("count catalog entries: %w", err)
	}
	return products, routes, nil
}
