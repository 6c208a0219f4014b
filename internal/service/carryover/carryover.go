// Package carryover copies the previous shift's unprinted work into a newly
// opened shift so no order is lost across a shift boundary.
//
// The whole run is one transaction: either the new shift starts with the
// complete backlog or with none of it. Route states are recomputed after
// commit, once per affected route.
package carryover

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/repository/postgres"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/service/shift"
)

// Engine performs the carryover run on shift open.
type Engine struct {
	db     *sql.DB
	bus    *events.Bus
	routes *routestate.Service
}

// NewEngine creates a carryover engine.
func NewEngine(db *sql.DB, bus *events.Bus, routes *routestate.Service) *Engine {
	return &Engine{db: db, bus: bus, routes: routes}
}

// Run copies every unprinted line of the most recent CLOSED shift into
// newShiftID. Each source lote with pending work becomes a fresh lote flagged
// carried_over, keeping operator bindings, catalog versions, and match data;
// print marks are reset. Returns how many lotes and lines were copied.
//
// When no shift has ever closed there is nothing to carry and Run returns
// zeros.
func (e *Engine) Run(ctx context.Context, newShiftID, actorID string) (int, int, error) {
	prev, err := postgres.NewShiftRepo(e.db).MostRecentClosed(ctx, newShiftID)
	if errors.Is(err, shift.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin carryover: %w", err)
	}
	defer tx.Rollback()

	lotes := postgres.NewLoteRepo(tx)
	routeRepo := postgres.NewRouteRepo(tx)
	eventRepo := postgres.NewEventRepo(tx)

	src, err := lotes.LotesWithUnprinted(ctx, prev.ID)
	if err != nil {
		return 0, 0, err
	}

	var evs []domain.Event
	touched := make(map[string]bool)
	copiedLotes, copiedLines := 0, 0

	for _, old := range src {
		if old.RouteNorm == nil {
			continue
		}
		routeNorm := *old.RouteNorm

		rd, err := routeRepo.FindOrCreate(ctx, newShiftID, routeNorm)
		if err != nil {
			return 0, 0, err
		}

		dup := &domain.Lote{
			ShiftID:                &newShiftID,
			ReceivedAt:             old.ReceivedAt,
			SubjectRaw:             old.SubjectRaw,
			BodyRaw:                old.BodyRaw,
			ParseStatus:            domain.ParseOK,
			RouteNorm:              &routeNorm,
			RouteDayID:             &rd.ID,
			ProductsCatalogVersion: old.ProductsCatalogVersion,
			RoutesCatalogVersion:   old.RoutesCatalogVersion,
			CarriedOver:            true,
			SourceLoteID:           &old.ID,
		}
		if _, err := lotes.Insert(ctx, dup); err != nil {
			return 0, 0, err
		}

		cos, err := lotes.ClientOrders(ctx, old.ID)
		if err != nil {
			return 0, 0, err
		}
		lineCount := 0
		for _, co := range cos {
			lines, err := lotes.Lines(ctx, co.ID, true)
			if err != nil {
				return 0, 0, err
			}
			if len(lines) == 0 {
				continue
			}
			nco := &domain.ClientOrder{
				LoteID:       dup.ID,
				Seq:          co.Seq,
				NameRaw:      co.NameRaw,
				AffinityKey:  co.AffinityKey,
				Observations: co.Observations,
			}
			if err := lotes.InsertClientOrder(ctx, nco); err != nil {
				return 0, 0, err
			}
			for _, ln := range lines {
				nl := &domain.OrderLine{
					ClientOrderID:  nco.ID,
					Seq:            ln.Seq,
					Quantity:       ln.Quantity,
					UnitRaw:        ln.UnitRaw,
					ProductRaw:     ln.ProductRaw,
					ProductNorm:    ln.ProductNorm,
					Price:          ln.Price,
					Currency:       ln.Currency,
					MatchMethod:    ln.MatchMethod,
					MatchScore:     ln.MatchScore,
					MatchedProduct: ln.MatchedProduct,
					Family:         ln.Family,
					FunctionalCode: ln.FunctionalCode,
					OperatorID:     ln.OperatorID,
					AssignedAt:     ln.AssignedAt,
				}
				if err := lotes.InsertLine(ctx, nl); err != nil {
					return 0, 0, err
				}
				lineCount++
			}
		}

		ev := events.New(domain.EventLoteCarriedOver, domain.EntityLote, dup.ID,
			map[string]interface{}{
				"source_lote_id": old.ID,
				"new_lote_id":    dup.ID,
				"route":          routeNorm,
				"lines":          lineCount,
			})
		ev = events.WithActor(ev, actorID)
		if err := eventRepo.Append(ctx, &ev); err != nil {
			return 0, 0, err
		}
		evs = append(evs, ev)

		touched[routeNorm] = true
		copiedLotes++
		copiedLines += lineCount
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit carryover: %w", err)
	}

	e.bus.Broadcast(evs...)
	for rn := range touched {
		if err := e.routes.Recompute(ctx, newShiftID, rn); err != nil {
			log.Printf("[Carryover] route recompute %s: %v", rn, err)
		}
	}
	return copiedLotes, copiedLines, nil
}
