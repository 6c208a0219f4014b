package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/textnorm"
)

// ProductUpload is one raw row of a product version upload.
type ProductUpload struct {
	Name   string `json:"name"`
	Family int    `json:"family"`
}

// Service implements catalog version management.
type Service struct {
	repo      Repository
	publisher *events.Publisher
}

// NewService creates a catalog service.
func NewService(repo Repository, publisher *events.Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// CreateProducts normalizes and stores a new product version. Rows that
// normalize to an empty name are dropped; when two rows normalize to the
// same name the first wins, matching the matcher's first-wins tie-break.
func (s *Service) CreateProducts(ctx context.Context, rows []ProductUpload) (version, count int, err error) {
	seen := map[string]bool{}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		if row.Family < 1 || row.Family > domain.FamilyCatchAll {
			return 0, 0, ErrBadFamily
		}
		norm := textnorm.Norm(row.Name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		entries = append(entries, Entry{NormName: norm, Family: row.Family})
	}
	if len(entries) == 0 {
		return 0, 0, ErrNoEntries
	}

	version, err = s.repo.CreateProductsVersion(ctx, entries)
	if err != nil {
		return 0, 0, fmt.Errorf("create products version: %w", err)
	}
	return version, len(entries), nil
}

// CreateRoutes normalizes and stores a new route version.
func (s *Service) CreateRoutes(ctx context.Context, names []string) (version, count int, err error) {
	seen := map[string]bool{}
	norms := make([]string, 0, len(names))
	for _, name := range names {
		norm := textnorm.Norm(name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		norms = append(norms, norm)
	}
	if len(norms) == 0 {
		return 0, 0, ErrNoEntries
	}

	version, err = s.repo.CreateRoutesVersion(ctx, norms)
	if err != nil {
		return 0, 0, fmt.Errorf("create routes version: %w", err)
	}
	return version, len(norms), nil
}

// ActivateProducts makes the given product version the one new lotes bind to.
// Already-processed lotes keep their recorded version.
func (s *Service) ActivateProducts(ctx context.Context, version int, actorID string) error {
	count, err := s.repo.ActivateProducts(ctx, version, time.Now().UTC())
	if err != nil {
		return err
	}
	ev := events.New(domain.EventProductsActivated, domain.EntityCatalog,
		fmt.Sprintf("products:%d", version), map[string]interface{}{
			"version": version,
			"entries": count,
		})
	if _, err := s.publisher.Publish(ctx, events.WithActor(ev, actorID)); err != nil {
		return fmt.Errorf("publish products activation: %w", err)
	}
	return nil
}

// ActivateRoutes makes the given route version the one new lotes bind to.
func (s *Service) ActivateRoutes(ctx context.Context, version int, actorID string) error {
	count, err := s.repo.ActivateRoutes(ctx, version, time.Now().UTC())
	if err != nil {
		return err
	}
	ev := events.New(domain.EventRoutesActivated, domain.EntityCatalog,
		fmt.Sprintf("routes:%d", version), map[string]interface{}{
			"version": version,
			"entries": count,
		})
	if _, err := s.publisher.Publish(ctx, events.WithActor(ev, actorID)); err != nil {
		return fmt.Errorf("publish routes activation: %w", err)
	}
	return nil
}

// ActiveInfo describes the currently active versions for the status surface.
type ActiveInfo struct {
	ProductsVersion *int `json:"products_version"`
	ProductsEntries int  `json:"products_entries"`
	RoutesVersion   *int `json:"routes_version"`
	RoutesEntries   int  `json:"routes_entries"`
}

// Active reports the active versions and their entry counts. A nil version
// means nothing has been activated yet.
func (s *Service) Active(ctx context.Context) (ActiveInfo, error) {
	var info ActiveInfo

	prods, err := s.repo.ProductVersions(ctx)
	if err != nil {
		return info, fmt.Errorf("list product versions: %w", err)
	}
	for i := range prods {
		if prods[i].Active {
			v := prods[i].Version
			info.ProductsVersion = &v
			break
		}
	}

	routes, err := s.repo.RouteVersions(ctx)
	if err != nil {
		return info, fmt.Errorf("list route versions: %w", err)
	}
	for i := range routes {
		if routes[i].Active {
			v := routes[i].Version
			info.RoutesVersion = &v
			break
		}
	}

	pv, rv := 0, 0
	if info.ProductsVersion != nil {
		pv = *info.ProductsVersion
	}
	if info.RoutesVersion != nil {
		rv = *info.RoutesVersion
	}
	if pv != 0 || rv != 0 {
		info.ProductsEntries, info.RoutesEntries, err = s.repo.EntryCounts(ctx, pv, rv)
		if err != nil {
			return info, fmt.Errorf("count catalog entries: %w", err)
		}
	}
	return info, nil
}

// Versions lists every stored version of both catalogs, newest first.
func (s *Service) Versions(ctx context.Context) ([]domain.ProductCatalog, []domain.RouteCatalog, error) {
	prods, err := s.repo.ProductVersions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list product versions: %w", err)
	}
	routes, err := s.repo.RouteVersions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list route versions: %w", err)
	}
	return prods, routes, nil
}
