package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
)

// LoteRepo persists lotes and their client orders and lines. Mutations are
// meant to run inside the caller's transaction.
type LoteRepo struct{ q Querier }

// NewLoteRepo creates a lote repository over the given Querier.
func NewLoteRepo(q Querier) *LoteRepo { return &LoteRepo{q: q} }

const loteColumns = `id, shift_id, imap_uidvalidity, imap_uid, received_at, subject_raw, body_raw,
	parse_status, parse_error, route_norm, route_day_id,
	products_catalog_version, routes_catalog_version, carried_over, source_lote_id, created_at`

func scanLote(row interface{ Scan(...interface{}) error }, l *domain.Lote) error {
	return row.Scan(&l.ID, &l.ShiftID, &l.ImapUIDValidity, &l.ImapUID, &l.ReceivedAt,
		&l.SubjectRaw, &l.BodyRaw, &l.ParseStatus, &l.ParseError, &l.RouteNorm, &l.RouteDayID,
		&l.ProductsCatalogVersion, &l.RoutesCatalogVersion, &l.CarriedOver, &l.SourceLoteID, &l.CreatedAt)
}

// Insert stores one lote row. Returns false without error when the mailbox
// message identity already exists; that is the ingest idempotency anchor.
func (r *LoteRepo) Insert(ctx context.Context, l *domain.Lote) (bool, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO lotes (id, shift_id, imap_uidvalidity, imap_uid, received_at, subject_raw, body_raw,
			parse_status, parse_error, route_norm, route_day_id,
			products_catalog_version, routes_catalog_version, carried_over, source_lote_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`, l.ID, l.ShiftID, l.ImapUIDValidity, l.ImapUID, l.ReceivedAt, l.SubjectRaw, l.BodyRaw,
		l.ParseStatus, l.ParseError, l.RouteNorm, l.RouteDayID,
		l.ProductsCatalogVersion, l.RoutesCatalogVersion, l.CarriedOver, l.SourceLoteID).Scan(&l.CreatedAt)
	if uniqueViolation(err, "lotes_imap_identity") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert lote: %w", err)
	}
	return true, nil
}

// Get returns one lote by id, or sql.ErrNoRows.
func (r *LoteRepo) Get(ctx context.Context, id string) (*domain.Lote, error) {
	var l domain.Lote
	err := scanLote(r.q.QueryRowContext(ctx,
		`SELECT `+loteColumns+` FROM lotes WHERE id = $1`, id), &l)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get lote: %w", err)
	}
	return &l, nil
}

// LockForProcess loads the lote row with a row lock so concurrent processors
// of the same lote serialize. Returns sql.ErrNoRows for unknown ids.
func (r *LoteRepo) LockForProcess(ctx context.Context, id string) (*domain.Lote, error) {
	var l domain.Lote
	err := scanLote(r.q.QueryRowContext(ctx,
		`SELECT `+loteColumns+` FROM lotes WHERE id = $1 FOR UPDATE`, id), &l)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("lock lote: %w", err)
	}
	return &l, nil
}

// MarkError writes a terminal parse failure. Catalog versions and the
// attempted route key are still recorded so triage can see what the lote was
// matched against.
func (r *LoteRepo) MarkError(ctx context.Context, id string, status domain.ParseStatus, parseErr string, routeNorm *string, productsVersion, routesVersion *int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE lotes
		SET parse_status = $2, parse_error = $3, route_norm = $4,
		    products_catalog_version = $5, routes_catalog_version = $6
		WHERE id = $1
	`, id, status, parseErr, routeNorm, productsVersion, routesVersion)
	if err != nil {
		return fmt.Errorf("mark lote error: %w", err)
	}
	return nil
}

// MarkOK finalizes a processed lote: status, resolved route, bound versions,
// and the shift it was processed into.
func (r *LoteRepo) MarkOK(ctx context.Context, id, shiftID, routeNorm, routeDayID string, productsVersion, routesVersion *int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE lotes
		SET parse_status = 'OK', parse_error = NULL, shift_id = $2, route_norm = $3, route_day_id = $4,
		    products_catalog_version = $5, routes_catalog_version = $6
		WHERE id = $1
	`, id, shiftID, routeNorm, routeDayID, productsVersion, routesVersion)
	if err != nil {
		return fmt.Errorf("mark lote ok: %w", err)
	}
	return nil
}

// ResetForReprocess returns a failed lote to PENDING. Existing orders are
// dropped (cascade removes their lines); rebind clears the bound catalog
// versions so processing snapshots the currently active ones.
func (r *LoteRepo) ResetForReprocess(ctx context.Context, id string, rebind bool) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM client_orders WHERE lote_id = $1`, id); err != nil {
		return fmt.Errorf("clear lote orders: %w", err)
	}
	query := `
		UPDATE lotes
		SET parse_status = 'PENDING', parse_error = NULL, route_norm = NULL, route_day_id = NULL
		WHERE id = $1`
	if rebind {
		query = `
		UPDATE lotes
		SET parse_status = 'PENDING', parse_error = NULL, route_norm = NULL, route_day_id = NULL,
		    products_catalog_version = NULL, routes_catalog_version = NULL
		WHERE id = $1`
	}
	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("reset lote: %w", err)
	}
	return nil
}

// InsertClientOrder stores one client group of a lote.
func (r *LoteRepo) InsertClientOrder(ctx context.Context, co *domain.ClientOrder) error {
	if co.ID == "" {
		co.ID = uuid.New().String()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO client_orders (id, lote_id, seq, name_raw, affinity_key, observations)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, co.ID, co.LoteID, co.Seq, co.NameRaw, co.AffinityKey, co.Observations).Scan(&co.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert client order: %w", err)
	}
	return nil
}

// InsertLine stores one order line.
func (r *LoteRepo) InsertLine(ctx context.Context, l *domain.OrderLine) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO order_lines (id, client_order_id, seq, quantity, unit_raw, product_raw, product_norm,
			price, currency, match_method, match_score, matched_product, family, functional_code,
			operator_id, assigned_at, printed_at, print_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at
	`, l.ID, l.ClientOrderID, l.Seq, l.Quantity, l.UnitRaw, l.ProductRaw, l.ProductNorm,
		l.Price, l.Currency, l.MatchMethod, l.MatchScore, l.MatchedProduct, l.Family, l.FunctionalCode,
		l.OperatorID, l.AssignedAt, l.PrintedAt, l.PrintCount).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

// ClientOrders returns the lote's client groups in document order.
func (r *LoteRepo) ClientOrders(ctx context.Context, loteID string) ([]domain.ClientOrder, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, lote_id, seq, name_raw, affinity_key, observations, created_at
		FROM client_orders WHERE lote_id = $1 ORDER BY seq
	`, loteID)
	if err != nil {
		return nil, fmt.Errorf("list client orders: %w", err)
	}
	defer rows.Close()

	var out []domain.ClientOrder
	for rows.Next() {
		var co domain.ClientOrder
		if err := rows.Scan(&co.ID, &co.LoteID, &co.Seq, &co.NameRaw, &co.AffinityKey, &co.Observations, &co.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client order: %w", err)
		}
		out = append(out, co)
	}
	return out, rows.Err()
}

const lineColumns = `id, client_order_id, seq, quantity, unit_raw, product_raw, product_norm,
	price, currency, match_method, match_score, matched_product, family, functional_code,
	operator_id, assigned_at, printed_at, print_count, created_at`

func scanLine(row interface{ Scan(...interface{}) error }, l *domain.OrderLine) error {
	return row.Scan(&l.ID, &l.ClientOrderID, &l.Seq, &l.Quantity, &l.UnitRaw, &l.ProductRaw, &l.ProductNorm,
		&l.Price, &l.Currency, &l.MatchMethod, &l.MatchScore, &l.MatchedProduct, &l.Family, &l.FunctionalCode,
		&l.OperatorID, &l.AssignedAt, &l.PrintedAt, &l.PrintCount, &l.CreatedAt)
}

// Lines returns a client order's lines in document order. unprintedOnly
// narrows to lines not yet on any print job.
func (r *LoteRepo) Lines(ctx context.Context, clientOrderID string, unprintedOnly bool) ([]domain.OrderLine, error) {
	query := `SELECT ` + lineColumns + ` FROM order_lines WHERE client_order_id = $1`
	if unprintedOnly {
		query += ` AND printed_at IS NULL`
	}
	query += ` ORDER BY seq`

	rows, err := r.q.QueryContext(ctx, query, clientOrderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := scanLine(rows, &l); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LotesWithUnprinted returns the shift's OK lotes that still carry unprinted
// lines, in lote order. Carryover walks this list.
func (r *LoteRepo) LotesWithUnprinted(ctx context.Context, shiftID string) ([]domain.Lote, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+loteColumns+` FROM lotes lo
		WHERE lo.shift_id = $1 AND lo.parse_status = 'OK' AND EXISTS (
			SELECT 1 FROM client_orders co
			JOIN order_lines ol ON ol.client_order_id = co.id
			WHERE co.lote_id = lo.id AND ol.printed_at IS NULL
		)
		ORDER BY lo.created_at, lo.id
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("list lotes with unprinted: %w", err)
	}
	defer rows.Close()

	var out []domain.Lote
	for rows.Next() {
		var l domain.Lote
		if err := scanLote(rows, &l); err != nil {
			return nil, fmt.Errorf("scan lote: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LatestOK returns the id of the newest OK lote on the route, in lote order,
// or nil when the route has none. This is the cutoff captured at enter.
func (r *LoteRepo) LatestOK(ctx context.Context, shiftID, routeNorm string) (*string, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `
		SELECT id FROM lotes
		WHERE shift_id = $1 AND route_norm = $2 AND parse_status = 'OK'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, shiftID, routeNorm).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest ok lote: %w", err)
	}
	return &id, nil
}

// StuckPending returns ids of PENDING lotes created before the deadline.
// The recovery sweeper re-drives these through processing.
func (r *LoteRepo) StuckPending(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id FROM lotes
		WHERE parse_status = 'PENDING' AND created_at < $1
		ORDER BY created_at, id
	`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck lotes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stuck lote: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PurgeBodiesBefore blanks the raw email bodies of lotes older than the
// cutoff. The lote row itself stays for the audit trail; only the bulky
// source text goes. Already-purged rows are skipped so sweeps stay cheap.
func (r *LoteRepo) PurgeBodiesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE lotes SET body_raw = ''
		WHERE created_at < $1 AND body_raw <> ''
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge lote bodies before: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LoteFilter narrows the triage listing. Zero values mean "any".
type LoteFilter struct {
	ShiftID string
	Status  string
	Limit   int
	Offset  int
}

// List returns a page of lotes (newest first) plus the total match count.
func (r *LoteRepo) List(ctx context.Context, f LoteFilter) ([]domain.Lote, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.ShiftID != "" {
		where += fmt.Sprintf(" AND shift_id = $%d", idx)
		args = append(args, f.ShiftID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND parse_status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int64
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM lotes"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lotes: %w", err)
	}

	query := `SELECT ` + loteColumns + ` FROM lotes` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list lotes: %w", err)
	}
	defer rows.Close()

	var out []domain.Lote
	for rows.Next() {
		var l domain.Lote
		if err := scanLote(rows, &l); err != nil {
			return nil, 0, fmt.Errorf("scan lote: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}
