package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
)

// RouteRepo persists per-shift route days and serves the wall-display
// aggregates.
type RouteRepo struct{ q Querier }

// NewRouteRepo creates a route repository over the given Querier.
func NewRouteRepo(q Querier) *RouteRepo { return &RouteRepo{q: q} }

const routeDayColumns = `id, shift_id, route_norm, visual_state, logical_state, reactivations_count, last_event_at, created_at`

func scanRouteDay(row interface{ Scan(...interface{}) error }, rd *domain.RouteDay) error {
	return row.Scan(&rd.ID, &rd.ShiftID, &rd.RouteNorm, &rd.VisualState, &rd.LogicalState,
		&rd.ReactivationsCount, &rd.LastEventAt, &rd.CreatedAt)
}

// FindOrCreate returns the shift's route day for the route, creating it on
// first reference. Safe under concurrent creators.
func (r *RouteRepo) FindOrCreate(ctx context.Context, shiftID, routeNorm string) (*domain.RouteDay, error) {
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO route_days (id, shift_id, route_norm)
		VALUES ($1, $2, $3)
		ON CONFLICT (shift_id, route_norm) DO NOTHING
	`, uuid.New().String(), shiftID, routeNorm); err != nil {
		return nil, fmt.Errorf("create route day: %w", err)
	}

	var rd domain.RouteDay
	err := scanRouteDay(r.q.QueryRowContext(ctx,
		`SELECT `+routeDayColumns+` FROM route_days WHERE shift_id = $1 AND route_norm = $2`,
		shiftID, routeNorm), &rd)
	if err != nil {
		return nil, fmt.Errorf("get route day: %w", err)
	}
	return &rd, nil
}

// Get returns one route day by id, or sql.ErrNoRows.
func (r *RouteRepo) Get(ctx context.Context, id string) (*domain.RouteDay, error) {
	var rd domain.RouteDay
	err := scanRouteDay(r.q.QueryRowContext(ctx,
		`SELECT `+routeDayColumns+` FROM route_days WHERE id = $1`, id), &rd)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get route day: %w", err)
	}
	return &rd, nil
}

// LockByID loads the route day with a row lock. State recomputation runs
// under this lock so concurrent transitions serialize per route.
func (r *RouteRepo) LockByID(ctx context.Context, id string) (*domain.RouteDay, error) {
	var rd domain.RouteDay
	err := scanRouteDay(r.q.QueryRowContext(ctx,
		`SELECT `+routeDayColumns+` FROM route_days WHERE id = $1 FOR UPDATE`, id), &rd)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("lock route day: %w", err)
	}
	return &rd, nil
}

// Lock loads the route day by (shift, route) with a row lock.
func (r *RouteRepo) Lock(ctx context.Context, shiftID, routeNorm string) (*domain.RouteDay, error) {
	var rd domain.RouteDay
	err := scanRouteDay(r.q.QueryRowContext(ctx,
		`SELECT `+routeDayColumns+` FROM route_days WHERE shift_id = $1 AND route_norm = $2 FOR UPDATE`,
		shiftID, routeNorm), &rd)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("lock route day: %w", err)
	}
	return &rd, nil
}

// UpdateState writes the recomputed states back.
func (r *RouteRepo) UpdateState(ctx context.Context, id string, visual domain.VisualState, logical domain.LogicalState, reactivations int, lastEventAt time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE route_days
		SET visual_state = $2, logical_state = $3, reactivations_count = $4, last_event_at = $5
		WHERE id = $1
	`, id, visual, logical, reactivations, lastEventAt)
	if err != nil {
		return fmt.Errorf("update route day: %w", err)
	}
	return nil
}

// UnprintedCount counts the route's dispatchable lines not yet printed.
func (r *RouteRepo) UnprintedCount(ctx context.Context, shiftID, routeNorm string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM order_lines ol
		JOIN client_orders co ON ol.client_order_id = co.id
		JOIN lotes lo ON co.lote_id = lo.id
		WHERE lo.shift_id = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
		  AND ol.printed_at IS NULL
	`, shiftID, routeNorm).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unprinted: %w", err)
	}
	return n, nil
}

// Summaries returns the wall-display rows for the shift, one per route day,
// ordered by route name.
func (r *RouteRepo) Summaries(ctx context.Context, shiftID string) ([]domain.RouteSummary, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT rd.id, rd.route_norm, rd.visual_state, rd.logical_state, rd.reactivations_count, rd.last_event_at,
		       COALESCE(agg.unprinted, 0), COALESCE(agg.total_lines, 0),
		       COALESCE(agg.total_clients, 0), COALESCE(agg.lotes_count, 0)
		FROM route_days rd
		LEFT JOIN (
			SELECT lo.route_day_id,
			       COUNT(ol.id) FILTER (WHERE ol.printed_at IS NULL) AS unprinted,
			       COUNT(ol.id) AS total_lines,
			       COUNT(DISTINCT co.id) AS total_clients,
			       COUNT(DISTINCT lo.id) AS lotes_count
			FROM lotes lo
			LEFT JOIN client_orders co ON co.lote_id = lo.id
			LEFT JOIN order_lines ol ON ol.client_order_id = co.id
			WHERE lo.shift_id = $1 AND lo.parse_status = 'OK'
			GROUP BY lo.route_day_id
		) agg ON agg.route_day_id = rd.id
		WHERE rd.shift_id = $1
		ORDER BY rd.route_norm
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("list route summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.RouteSummary
	for rows.Next() {
		var s domain.RouteSummary
		if err := rows.Scan(&s.RouteDayID, &s.RouteNorm, &s.VisualState, &s.LogicalState,
			&s.ReactivationsCount, &s.LastEventAt, &s.Unprinted, &s.TotalLines,
			&s.TotalClients, &s.LotesCount); err != nil {
			return nil, fmt.Errorf("scan route summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
