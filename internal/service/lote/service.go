package lote

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/delsur/comandero/internal/assign"
	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/mailparse"
	"github.com/delsur/comandero/internal/matcher"
	"github.com/delsur/comandero/internal/repository/postgres"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/textnorm"
)

// Service drives lote processing and the triage surface around it.
type Service struct {
	db        *sql.DB
	bus       *events.Bus
	routes    *routestate.Service
	threshold int
	currency  string
}

// NewService creates a lote service.
func NewService(db *sql.DB, bus *events.Bus, routes *routestate.Service) *Service {
	return &Service{
		db:        db,
		bus:       bus,
		routes:    routes,
		threshold: matcher.DefaultThreshold,
		currency:  "EUR",
	}
}

// SetFuzzyThreshold overrides the product matcher threshold.
func (s *Service) SetFuzzyThreshold(t int) { s.threshold = t }

// SetCurrency sets the currency stamped on stored lines.
func (s *Service) SetCurrency(c string) { s.currency = c }

type processResult struct {
	events    []domain.Event
	shiftID   string
	routeNorm string
}

// Process runs the full pipeline for one lote: route resolution, body parse,
// matching, assignment, final status. Re-processing an OK lote is a no-op.
// On an unexpected failure the transaction is rolled back and the lote is
// parked as ERROR_PARSE with the failure message.
func (s *Service) Process(ctx context.Context, loteID string) error {
	res, err := s.processTx(ctx, loteID)
	if err != nil {
		if err == ErrNotFound {
			return err
		}
		s.recordFailure(loteID, err)
		return err
	}
	s.bus.Broadcast(res.events...)
	if res.routeNorm != "" {
		if rerr := s.routes.Recompute(ctx, res.shiftID, res.routeNorm); rerr != nil {
			log.Printf("[LoteProcessor] route recompute %s: %v", res.routeNorm, rerr)
		}
	}
	return nil
}

func (s *Service) processTx(ctx context.Context, loteID string) (processResult, error) {
	var res processResult

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return res, fmt.Errorf("begin process: %w", err)
	}
	defer tx.Rollback()

	lotes := postgres.NewLoteRepo(tx)
	eventRepo := postgres.NewEventRepo(tx)

	l, err := lotes.LockForProcess(ctx, loteID)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if l.ParseStatus == domain.ParseOK {
		return res, tx.Commit()
	}

	var shiftID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM shifts WHERE state = 'ACTIVE'`).Scan(&shiftID)
	if err == sql.ErrNoRows {
		if err := lotes.MarkError(ctx, l.ID, domain.ParseErrorParse, "no active shift",
			l.RouteNorm, l.ProductsCatalogVersion, l.RoutesCatalogVersion); err != nil {
			return res, err
		}
		ev := events.New(domain.EventLoteProcessError, domain.EntityLote, l.ID,
			map[string]interface{}{"error": "no active shift"})
		if err := eventRepo.Append(ctx, &ev); err != nil {
			return res, err
		}
		res.events = append(res.events, ev)
		return res, tx.Commit()
	}
	if err != nil {
		return res, fmt.Errorf("load active shift: %w", err)
	}
	res.shiftID = shiftID

	// Bind catalog versions once; reprocessing keeps the original binding
	// unless the caller asked for a rebind.
	pv, rv := l.ProductsCatalogVersion, l.RoutesCatalogVersion
	if pv == nil {
		if pv, err = activeVersion(ctx, tx, "product_catalogs"); err != nil {
			return res, err
		}
	}
	if rv == nil {
		if rv, err = activeVersion(ctx, tx, "route_catalogs"); err != nil {
			return res, err
		}
	}

	routeKey := mailparse.RouteKey(l.SubjectRaw)
	known := false
	if rv != nil {
		if known, err = routeKnown(ctx, tx, *rv, routeKey); err != nil {
			return res, err
		}
	}
	if !known {
		reason := "unknown route"
		if rv == nil {
			reason = "no active routes catalog"
		}
		if err := lotes.MarkError(ctx, l.ID, domain.ParseErrorRoute, reason, &routeKey, pv, rv); err != nil {
			return res, err
		}
		ev := events.New(domain.EventRouteParseError, domain.EntityLote, l.ID,
			map[string]interface{}{
				"subject":    l.SubjectRaw,
				"route_norm": routeKey,
				"reason":     reason,
			})
		if err := eventRepo.Append(ctx, &ev); err != nil {
			return res, err
		}
		res.events = append(res.events, ev)
		return res, tx.Commit()
	}

	rd, err := postgres.NewRouteRepo(tx).FindOrCreate(ctx, shiftID, routeKey)
	if err != nil {
		return res, err
	}

	bp := mailparse.ParseBody(l.BodyRaw)
	if !bp.OK() {
		msg := "no clients found"
		if errs := bp.Errors(); len(errs) > 0 {
			msg = errs[0].Message
		}
		if err := lotes.MarkError(ctx, l.ID, domain.ParseErrorParse, msg, &routeKey, pv, rv); err != nil {
			return res, err
		}
		ev := events.New(domain.EventBodyParseError, domain.EntityLote, l.ID,
			map[string]interface{}{
				"route":  routeKey,
				"reason": msg,
				"issues": len(bp.Issues),
			})
		if err := eventRepo.Append(ctx, &ev); err != nil {
			return res, err
		}
		res.events = append(res.events, ev)
		return res, tx.Commit()
	}

	var entries []domain.CatalogProduct
	if pv != nil {
		if entries, err = loadProducts(ctx, tx, *pv); err != nil {
			return res, err
		}
	}
	m := matcher.New(entries, s.threshold)
	engine := assign.NewEngine(postgres.NewAssignRepo(tx))

	now := time.Now().UTC()
	totalLines := 0
	for ci := range bp.Clients {
		pc := &bp.Clients[ci]
		co := &domain.ClientOrder{
			LoteID:       l.ID,
			Seq:          ci + 1,
			NameRaw:      pc.Name,
			AffinityKey:  textnorm.Norm(pc.Name),
			Observations: pc.Observations,
		}
		if err := lotes.InsertClientOrder(ctx, co); err != nil {
			return res, err
		}

		for _, pl := range pc.Lines {
			match := m.Match(pl.ProductRaw)
			method := match.Method
			price := pl.Price
			line := &domain.OrderLine{
				ClientOrderID:  co.ID,
				Seq:            pl.Seq,
				Quantity:       pl.Quantity,
				UnitRaw:        pl.UnitRaw,
				ProductRaw:     pl.ProductRaw,
				ProductNorm:    textnorm.Norm(pl.ProductRaw),
				Price:          &price,
				Currency:       s.currency,
				MatchMethod:    &method,
				Family:         domain.FamilyCatchAll,
				FunctionalCode: domain.FamilyCatchAll,
			}

			if match.Method == domain.MatchNoMatch {
				ev := events.New(domain.EventProductNotFound, domain.EntityLote, l.ID,
					map[string]interface{}{
						"client":       pc.Name,
						"product_raw":  pl.ProductRaw,
						"product_norm": line.ProductNorm,
					})
				if err := eventRepo.Append(ctx, &ev); err != nil {
					return res, err
				}
				res.events = append(res.events, ev)
			} else {
				score := match.Score
				pid := match.ProductID
				line.MatchScore = &score
				line.MatchedProduct = &pid
				line.Family = match.Family
				line.FunctionalCode = match.Family

				if match.Method == domain.MatchFuzzy {
					ev := events.New(domain.EventProductFuzzyMatch, domain.EntityLote, l.ID,
						map[string]interface{}{
							"client":      pc.Name,
							"product_raw": pl.ProductRaw,
							"score":       match.Score,
						})
					if err := eventRepo.Append(ctx, &ev); err != nil {
						return res, err
					}
					res.events = append(res.events, ev)
				}

				ar, err := engine.Assign(ctx, shiftID, pc.Name, line.FunctionalCode)
				if err != nil {
					return res, err
				}
				if ar.Reason == assign.ReasonNoPool {
					ev := events.New(domain.EventEmptyOperatorPool, domain.EntityLote, l.ID,
						map[string]interface{}{
							"client":          pc.Name,
							"functional_code": line.FunctionalCode,
						})
					if err := eventRepo.Append(ctx, &ev); err != nil {
						return res, err
					}
					res.events = append(res.events, ev)
				} else {
					op := ar.OperatorID
					line.OperatorID = &op
					line.AssignedAt = &now
				}
			}

			if err := lotes.InsertLine(ctx, line); err != nil {
				return res, err
			}
			totalLines++
		}
	}

	if err := lotes.MarkOK(ctx, l.ID, shiftID, routeKey, rd.ID, pv, rv); err != nil {
		return res, err
	}
	ev := events.New(domain.EventLoteProcessed, domain.EntityLote, l.ID,
		map[string]interface{}{
			"route":    routeKey,
			"clients":  len(bp.Clients),
			"lines":    totalLines,
			"warnings": len(bp.Issues),
		})
	if err := eventRepo.Append(ctx, &ev); err != nil {
		return res, err
	}
	res.events = append(res.events, ev)

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit process: %w", err)
	}
	res.routeNorm = routeKey
	return res, nil
}

// recordFailure parks a lote whose processing transaction rolled back. Runs
// on a fresh context so a cancelled request still leaves a triageable row.
func (s *Service) recordFailure(loteID string, procErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[LoteProcessor] record failure begin for %s: %v", loteID, err)
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE lotes SET parse_status = 'ERROR_PARSE', parse_error = $2 WHERE id = $1
	`, loteID, procErr.Error()); err != nil {
		log.Printf("[LoteProcessor] record failure for %s: %v", loteID, err)
		return
	}
	ev := events.New(domain.EventLoteProcessError, domain.EntityLote, loteID,
		map[string]interface{}{"error": procErr.Error()})
	if err := postgres.NewEventRepo(tx).Append(ctx, &ev); err != nil {
		log.Printf("[LoteProcessor] record failure event for %s: %v", loteID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[LoteProcessor] record failure commit for %s: %v", loteID, err)
		return
	}
	s.bus.Broadcast(ev)
}

// RecoverStuck re-drives PENDING lotes that predate the deadline. Returns
// how many were driven; individual failures are parked per lote and do not
// stop the sweep.
func (s *Service) RecoverStuck(ctx context.Context, olderThan time.Time) (int, error) {
	ids, err := postgres.NewLoteRepo(s.db).StuckPending(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.Process(ctx, id); err != nil {
			log.Printf("[LoteProcessor] recover %s: %v", id, err)
			continue
		}
		n++
	}
	return n, nil
}

// Reprocess resets a failed lote and drives it again. rebind drops the
// original catalog binding so the retry uses the currently active versions.
// The resulting lote is returned whatever status it lands in.
func (s *Service) Reprocess(ctx context.Context, loteID string, rebind bool, actorID string) (*domain.Lote, error) {
	repo := postgres.NewLoteRepo(s.db)
	l, err := repo.Get(ctx, loteID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !l.ParseStatus.IsTerminalError() {
		return nil, ErrNotRetriable
	}

	// A retry that must bind catalog versions is pointless while nothing is
	// active; refuse upfront so the caller fixes catalogs first.
	if rebind || l.ProductsCatalogVersion == nil || l.RoutesCatalogVersion == nil {
		pv, err := activeVersion(ctx, s.db, "product_catalogs")
		if err != nil {
			return nil, err
		}
		rv, err := activeVersion(ctx, s.db, "route_catalogs")
		if err != nil {
			return nil, err
		}
		if pv == nil || rv == nil {
			return nil, ErrNoActiveCatalog
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reprocess: %w", err)
	}
	defer tx.Rollback()
	if err := postgres.NewLoteRepo(tx).ResetForReprocess(ctx, loteID, rebind); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reprocess reset: %w", err)
	}

	log.Printf("[LoteProcessor] reprocess %s (rebind=%t) requested by %s", loteID, rebind, actorID)
	if err := s.Process(ctx, loteID); err != nil {
		log.Printf("[LoteProcessor] reprocess %s: %v", loteID, err)
	}
	return repo.Get(ctx, loteID)
}

// ClientOrderDetail is one client group with its lines, for triage views.
type ClientOrderDetail struct {
	domain.ClientOrder
	Lines []domain.OrderLine `json:"lines"`
}

// Detail is the full triage view of one lote.
type Detail struct {
	Lote    domain.Lote         `json:"lote"`
	Clients []ClientOrderDetail `json:"clients"`
}

// Get returns the full detail of one lote.
func (s *Service) Get(ctx context.Context, loteID string) (*Detail, error) {
	repo := postgres.NewLoteRepo(s.db)
	l, err := repo.Get(ctx, loteID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cos, err := repo.ClientOrders(ctx, loteID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Lote: *l}
	for _, co := range cos {
		lines, err := repo.Lines(ctx, co.ID, false)
		if err != nil {
			return nil, err
		}
		d.Clients = append(d.Clients, ClientOrderDetail{ClientOrder: co, Lines: lines})
	}
	return d, nil
}

// List returns a page of lotes for triage.
func (s *Service) List(ctx context.Context, f postgres.LoteFilter) ([]domain.Lote, int64, error) {
	return postgres.NewLoteRepo(s.db).List(ctx, f)
}

func activeVersion(ctx context.Context, q postgres.Querier, table string) (*int, error) {
	var v int
	err := q.QueryRowContext(ctx, `SELECT version FROM `+table+` WHERE active`).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active version of %s: %w", table, err)
	}
	return &v, nil
}

func routeKnown(ctx context.Context, tx *sql.Tx, version int, routeNorm string) (bool, error) {
	var known bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM catalog_routes WHERE catalog_version = $1 AND norm_name = $2)
	`, version, routeNorm).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("route lookup: %w", err)
	}
	return known, nil
}

func loadProducts(ctx context.Context, tx *sql.Tx, version int) ([]domain.CatalogProduct, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, catalog_version, norm_name, family
		FROM catalog_products
		WHERE catalog_version = $1
		ORDER BY norm_name
	`, version)
	if err != nil {
		return nil, fmt.Errorf("load product snapshot: %w", err)
	}
	defer rows.Close()

	var out []domain.CatalogProduct
	for rows.Next() {
		var p domain.CatalogProduct
		if err := rows.Scan(&p.ID, &p.CatalogVersion, &p.NormName, &p.Family); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
