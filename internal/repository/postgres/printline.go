package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PrintLine is one printable row: the order line joined with its client and
// lote context, in print order.
type PrintLine struct {
	LineID        string
	ClientOrderID string
	LoteID        string
	LoteCreatedAt time.Time
	ClientName    string
	Observations  string
	ClientSeq     int
	LineSeq       int
	Quantity      float64
	UnitRaw       string
	ProductRaw    string
	ProductNorm   string
	Price         *float64
	Currency      string
	Family        int
	OperatorID    *string
	PrintedAt     *time.Time
}

// PrintLineRepo runs the selector windows that decide what a print covers.
// Lote order is (created_at, id); windows compare whole lote positions, never
// timestamps alone.
type PrintLineRepo struct{ q Querier }

// NewPrintLineRepo creates a print line repository over the given Querier.
func NewPrintLineRepo(q Querier) *PrintLineRepo { return &PrintLineRepo{q: q} }

const printLineSelect = `
	SELECT ol.id, co.id, lo.id, lo.created_at, co.name_raw, co.observations, co.seq, ol.seq,
	       ol.quantity, ol.unit_raw, ol.product_raw, ol.product_norm, ol.price, ol.currency,
	       ol.family, ol.operator_id, ol.printed_at
	FROM order_lines ol
	JOIN client_orders co ON ol.client_order_id = co.id
	JOIN lotes lo ON co.lote_id = lo.id`

const printLineOrder = ` ORDER BY lo.created_at, lo.id, co.seq, ol.seq`

func (r *PrintLineRepo) collect(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close() error
}) ([]PrintLine, error) {
	defer rows.Close()
	var out []PrintLine
	for rows.Next() {
		var l PrintLine
		if err := rows.Scan(&l.LineID, &l.ClientOrderID, &l.LoteID, &l.LoteCreatedAt,
			&l.ClientName, &l.Observations, &l.ClientSeq, &l.LineSeq,
			&l.Quantity, &l.UnitRaw, &l.ProductRaw, &l.ProductNorm, &l.Price, &l.Currency,
			&l.Family, &l.OperatorID, &l.PrintedAt); err != nil {
			return nil, fmt.Errorf("scan print line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// OperatorInitial selects the operator's snapshot: every line of theirs on
// the route from lotes at or before the cutoff, printed or not.
func (r *PrintLineRepo) OperatorInitial(ctx context.Context, shiftID, routeNorm, operatorID, cutoffLoteID string) ([]PrintLine, error) {
	rows, err := r.q.QueryContext(ctx, printLineSelect+`
	JOIN lotes cut ON cut.id = $4
	WHERE lo.shift_id = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
	  AND ol.operator_id = $3
	  AND (lo.created_at, lo.id) <= (cut.created_at, cut.id)`+printLineOrder,
		shiftID, routeNorm, operatorID, cutoffLoteID)
	if err != nil {
		return nil, fmt.Errorf("select initial lines: %w", err)
	}
	return r.collect(rows)
}

// OperatorNew selects the operator's lines from lotes strictly after the
// given lote. A nil afterLoteID opens the window to the whole route.
func (r *PrintLineRepo) OperatorNew(ctx context.Context, shiftID, routeNorm, operatorID string, afterLoteID *string) ([]PrintLine, error) {
	if afterLoteID == nil {
		rows, err := r.q.QueryContext(ctx, printLineSelect+`
	WHERE lo.shift_id = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
	  AND ol.operator_id = $3`+printLineOrder,
			shiftID, routeNorm, operatorID)
		if err != nil {
			return nil, fmt.Errorf("select new lines: %w", err)
		}
		return r.collect(rows)
	}

	rows, err := r.q.QueryContext(ctx, printLineSelect+`
	JOIN lotes prev ON prev.id = $4
	WHERE lo.shift_id = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
	  AND ol.operator_id = $3
	  AND (lo.created_at, lo.id) > (prev.created_at, prev.id)`+printLineOrder,
		shiftID, routeNorm, operatorID, *afterLoteID)
	if err != nil {
		return nil, fmt.Errorf("select new lines: %w", err)
	}
	return r.collect(rows)
}

// CollectorNew selects every line on the route, any operator, from lotes
// strictly after the given lote. A nil afterLoteID opens the window to the
// whole route.
func (r *PrintLineRepo) CollectorNew(ctx context.Context, shiftID, routeNorm string, afterLoteID *string) ([]PrintLine, error) {
	if afterLoteID == nil {
		rows, err := r.q.QueryContext(ctx, printLineSelect+`
	WHERE lo.shift_id = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'`+printLineOrder,
			shiftID, routeNorm)
		if err != nil {
			return nil, fmt.Errorf("select collector lines: %w", err)
		}
		return r.collect(rows)
	}

	rows, err := r.q.QueryContext(ctx, printLineSelect+`
	JOIN lotes prev ON prev.id = $3
	WHERE lo.shift_id = $1 AND lo.route_norm = $2 AND lo.parse_status = 'OK'
	  AND (lo.created_at, lo.id) > (prev.created_at, prev.id)`+printLineOrder,
		shiftID, routeNorm, *afterLoteID)
	if err != nil {
		return nil, fmt.Errorf("select collector lines: %w", err)
	}
	return r.collect(rows)
}

// ByIDs reloads a known line set in print order. Reprints use it to rebuild
// the source job's document.
func (r *PrintLineRepo) ByIDs(ctx context.Context, ids []string) ([]PrintLine, error) {
	rows, err := r.q.QueryContext(ctx, printLineSelect+`
	WHERE ol.id = ANY($1)`+printLineOrder, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select lines by id: %w", err)
	}
	return r.collect(rows)
}

// Stamp marks the lines printed. First print sets printed_at; every print,
// reprints included, bumps print_count.
func (r *PrintLineRepo) Stamp(ctx context.Context, ids []string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE order_lines
		SET printed_at = COALESCE(printed_at, $2), print_count = print_count + 1
		WHERE id = ANY($1)
	`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("stamp lines: %w", err)
	}
	return nil
}
