package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/delsur/comandero/internal/domain"
)

// ProgressRepo persists the print cursors: per-operator route progress and
// the per-route collection cursor.
type ProgressRepo struct{ q Querier }

// NewProgressRepo creates a progress repository over the given Querier.
func NewProgressRepo(q Querier) *ProgressRepo { return &ProgressRepo{q: q} }

// Operator returns one operator's progress row, or sql.ErrNoRows when the
// operator never entered the route.
func (r *ProgressRepo) Operator(ctx context.Context, shiftID, operatorID, routeNorm string) (*domain.OperatorRouteProgress, error) {
	var p domain.OperatorRouteProgress
	err := r.q.QueryRowContext(ctx, `
		SELECT shift_id, operator_id, route_norm, entered_at, cutoff_lote_id, last_printed_lote_id, last_printed_at
		FROM operator_route_progress
		WHERE shift_id = $1 AND operator_id = $2 AND route_norm = $3
	`, shiftID, operatorID, routeNorm).Scan(&p.ShiftID, &p.OperatorID, &p.RouteNorm,
		&p.EnteredAt, &p.CutoffLoteID, &p.LastPrintedLoteID, &p.LastPrintedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get operator progress: %w", err)
	}
	return &p, nil
}

// EnterOperator creates the progress row with its frozen cutoff. Returns
// false when the row already existed; the stored cutoff is never touched.
func (r *ProgressRepo) EnterOperator(ctx context.Context, shiftID, operatorID, routeNorm string, cutoffLoteID *string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO operator_route_progress (shift_id, operator_id, route_norm, entered_at, cutoff_lote_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shift_id, operator_id, route_norm) DO NOTHING
	`, shiftID, operatorID, routeNorm, at, cutoffLoteID)
	if err != nil {
		return false, fmt.Errorf("enter route: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enter route rows: %w", err)
	}
	return n > 0, nil
}

// AdvanceOperator moves the operator's printed cursor to the given lote.
func (r *ProgressRepo) AdvanceOperator(ctx context.Context, shiftID, operatorID, routeNorm, loteID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE operator_route_progress
		SET last_printed_lote_id = $4, last_printed_at = $5
		WHERE shift_id = $1 AND operator_id = $2 AND route_norm = $3
	`, shiftID, operatorID, routeNorm, loteID, at)
	if err != nil {
		return fmt.Errorf("advance operator cursor: %w", err)
	}
	return nil
}

// Collector returns the route's collection cursor, creating the row on first
// use with an open (nil) cursor.
func (r *ProgressRepo) Collector(ctx context.Context, shiftID, routeNorm string) (*domain.CollectorRouteProgress, error) {
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO collector_route_progress (shift_id, route_norm)
		VALUES ($1, $2)
		ON CONFLICT (shift_id, route_norm) DO NOTHING
	`, shiftID, routeNorm); err != nil {
		return nil, fmt.Errorf("seed collector cursor: %w", err)
	}

	var p domain.CollectorRouteProgress
	err := r.q.QueryRowContext(ctx, `
		SELECT shift_id, route_norm, last_closed_lote_id, last_closed_at
		FROM collector_route_progress
		WHERE shift_id = $1 AND route_norm = $2
	`, shiftID, routeNorm).Scan(&p.ShiftID, &p.RouteNorm, &p.LastClosedLoteID, &p.LastClosedAt)
	if err != nil {
		return nil, fmt.Errorf("get collector cursor: %w", err)
	}
	return &p, nil
}

// AdvanceCollector moves the route's collection cursor to the given lote.
func (r *ProgressRepo) AdvanceCollector(ctx context.Context, shiftID, routeNorm, loteID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE collector_route_progress
		SET last_closed_lote_id = $3, last_closed_at = $4
		WHERE shift_id = $1 AND route_norm = $2
	`, shiftID, routeNorm, loteID, at)
	if err != nil {
		return fmt.Errorf("advance collector cursor: %w", err)
	}
	return nil
}
