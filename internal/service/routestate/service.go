// Package routestate keeps the wall display honest: it re-derives each
// route's visual color after pipeline writes and handles the collector
// lifecycle (collect, reactivate).
//
// Every operation runs its own short transaction with the route-day row
// locked, so concurrent lote processing, printing, and collecting serialize
// per route. Events are appended inside the transaction and broadcast only
// after commit.
package routestate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/repository/postgres"
)

// ErrRouteNotFound is returned when a route-day id names nothing.
var ErrRouteNotFound = errors.New("route not found")

// Service implements route state transitions.
type Service struct {
	db  *sql.DB
	bus *events.Bus
}

// NewService creates a route state service.
func NewService(db *sql.DB, bus *events.Bus) *Service {
	return &Service{db: db, bus: bus}
}

// Recompute re-derives the route's visual state from its pending work.
// Callers invoke it after committing writes that changed the route's lines
// (lote processed, print emitted, carryover landed). A route the shift has
// never seen is a no-op.
func (s *Service) Recompute(ctx context.Context, shiftID, routeNorm string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recompute: %w", err)
	}
	defer tx.Rollback()

	routes := postgres.NewRouteRepo(tx)
	rd, err := routes.Lock(ctx, shiftID, routeNorm)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	unprinted, err := routes.UnprintedCount(ctx, shiftID, routeNorm)
	if err != nil {
		return err
	}

	next := domain.NextVisualState(rd.VisualState, rd.LogicalState, unprinted)
	if next == rd.VisualState {
		return tx.Commit()
	}

	now := time.Now().UTC()
	reacts := rd.ReactivationsCount
	var evs []domain.Event
	switch next {
	case domain.VisualRed:
		if rd.LogicalState == domain.RouteCollected && rd.VisualState == domain.VisualGreen {
			reacts++
		}
		evs = append(evs, events.New(domain.EventRouteAlertRed, domain.EntityRouteDay, rd.ID,
			map[string]interface{}{
				"shift_id":  shiftID,
				"route":     routeNorm,
				"unprinted": unprinted,
			}))
	case domain.VisualGreen:
		evs = append(evs, events.New(domain.EventRouteCompleteGreen, domain.EntityRouteDay, rd.ID,
			map[string]interface{}{
				"shift_id": shiftID,
				"route":    routeNorm,
			}))
	}

	if err := routes.UpdateState(ctx, rd.ID, next, rd.LogicalState, reacts, now); err != nil {
		return err
	}
	eventRepo := postgres.NewEventRepo(tx)
	for i := range evs {
		if err := eventRepo.Append(ctx, &evs[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recompute: %w", err)
	}
	s.bus.Broadcast(evs...)
	return nil
}

// MarkCollected flips the route to COLLECTED. Collecting an already
// collected route is a no-op, not an error.
func (s *Service) MarkCollected(ctx context.Context, routeDayID, actorID string) (*domain.RouteDay, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin collect: %w", err)
	}
	defer tx.Rollback()

	routes := postgres.NewRouteRepo(tx)
	rd, err := routes.LockByID(ctx, routeDayID)
	if err == sql.ErrNoRows {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	if rd.LogicalState == domain.RouteCollected {
		return rd, tx.Commit()
	}

	now := time.Now().UTC()
	if err := routes.UpdateState(ctx, rd.ID, rd.VisualState, domain.RouteCollected, rd.ReactivationsCount, now); err != nil {
		return nil, err
	}
	ev := events.WithActor(events.New(domain.EventRouteCollected, domain.EntityRouteDay, rd.ID,
		map[string]interface{}{
			"shift_id": rd.ShiftID,
			"route":    rd.RouteNorm,
		}), actorID)
	if err := postgres.NewEventRepo(tx).Append(ctx, &ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit collect: %w", err)
	}
	s.bus.Broadcast(ev)

	rd.LogicalState = domain.RouteCollected
	rd.LastEventAt = now
	return rd, nil
}

// Reactivate returns a COLLECTED route to ACTIVE. Operators entering a
// collected route and the explicit reactivation endpoint both land here.
// Reactivating an ACTIVE route is a no-op.
func (s *Service) Reactivate(ctx context.Context, routeDayID, actorID string) (*domain.RouteDay, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reactivate: %w", err)
	}
	defer tx.Rollback()

	routes := postgres.NewRouteRepo(tx)
	rd, err := routes.LockByID(ctx, routeDayID)
	if err == sql.ErrNoRows {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	if rd.LogicalState == domain.RouteActive {
		return rd, tx.Commit()
	}

	now := time.Now().UTC()
	if err := routes.UpdateState(ctx, rd.ID, rd.VisualState, domain.RouteActive, rd.ReactivationsCount, now); err != nil {
		return nil, err
	}
	ev := events.WithActor(events.New(domain.EventRouteReactivated, domain.EntityRouteDay, rd.ID,
		map[string]interface{}{
			"shift_id": rd.ShiftID,
			"route":    rd.RouteNorm,
		}), actorID)
	if err := postgres.NewEventRepo(tx).Append(ctx, &ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reactivate: %w", err)
	}
	s.bus.Broadcast(ev)

	rd.LogicalState = domain.RouteActive
	rd.LastEventAt = now
	return rd, nil
}
