package carryover

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/service/routestate"
)

func setupTest(t *testing.T) (*Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	bus := events.NewBus()
	bus.Start()
	eng := NewEngine(db, bus, routestate.NewService(db, bus))
	return eng, mock, func() {
		bus.Stop()
		db.Close()
	}
}

var shiftCols = []string{
	"id", "shift_date", "slot", "state", "started_at", "scheduled_end_at", "ended_at", "ended_by", "created_at",
}

func closedShiftRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(shiftCols).AddRow(
		id, now.AddDate(0, 0, -1), "MANANA", string(domain.ShiftClosed), now, now, now, "admin", now)
}

func TestRun_NoClosedShiftIsNoop(t *testing.T) {
	eng, mock, done := setupTest(t)
	defer done()

	mock.ExpectQuery(`SELECT .* FROM shifts\s+WHERE state = 'CLOSED' AND id <> \$1`).
		WithArgs("shift-new").
		WillReturnError(sql.ErrNoRows)

	lotes, lines, err := eng.Run(context.Background(), "shift-new", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lotes != 0 || lines != 0 {
		t.Fatalf("expected zero copies, got %d lotes / %d lines", lotes, lines)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRun_CopiesUnprintedWork(t *testing.T) {
	eng, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	op := "op-1"
	method := string(domain.MatchExact)

	loteCols := []string{
		"id", "shift_id", "imap_uidvalidity", "imap_uid", "received_at", "subject_raw", "body_raw",
		"parse_status", "parse_error", "route_norm", "route_day_id",
		"products_catalog_version", "routes_catalog_version", "carried_over", "source_lote_id", "created_at",
	}
	lineCols := []string{
		"id", "client_order_id", "seq", "quantity", "unit_raw", "product_raw", "product_norm",
		"price", "currency", "match_method", "match_score", "matched_product", "family", "functional_code",
		"operator_id", "assigned_at", "printed_at", "print_count", "created_at",
	}
	routeDayCols := []string{
		"id", "shift_id", "route_norm", "visual_state", "logical_state",
		"reactivations_count", "last_event_at", "created_at",
	}

	mock.ExpectQuery(`SELECT .* FROM shifts\s+WHERE state = 'CLOSED' AND id <> \$1`).
		WithArgs("shift-new").
		WillReturnRows(closedShiftRows("shift-old"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM lotes lo`).
		WithArgs("shift-old").
		WillReturnRows(sqlmock.NewRows(loteCols).AddRow(
			"lote-old", "shift-old", int64(7), int64(42), now, "RUTA NORTE", "body",
			string(domain.ParseOK), nil, "ruta norte", "rd-old", 3, 2, false, nil, now))
	mock.ExpectExec(`INSERT INTO route_days`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM route_days WHERE shift_id = \$1 AND route_norm = \$2`).
		WithArgs("shift-new", "ruta norte").
		WillReturnRows(sqlmock.NewRows(routeDayCols).AddRow(
			"rd-new", "shift-new", "ruta norte",
			string(domain.VisualBlue), string(domain.RouteActive), 0, now, now))
	mock.ExpectQuery(`INSERT INTO lotes`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`SELECT id, lote_id, seq, name_raw, affinity_key, observations, created_at\s+FROM client_orders`).
		WithArgs("lote-old").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lote_id", "seq", "name_raw", "affinity_key", "observations", "created_at",
		}).AddRow("co-old", "lote-old", 1, "Bar Pepe", "bar pepe", "", now))
	mock.ExpectQuery(`SELECT .* FROM order_lines WHERE client_order_id = \$1 AND printed_at IS NULL`).
		WithArgs("co-old").
		WillReturnRows(sqlmock.NewRows(lineCols).
			AddRow("ln-1", "co-old", 1, 2.0, "cajas", "manzana golden", "manzana golden",
				12.5, "EUR", method, 1.0, "prod-1", 2, 2, op, now, nil, 0, now).
			AddRow("ln-2", "co-old", 2, 1.0, "saco", "patata", "patata",
				8.0, "EUR", method, 1.0, "prod-2", 1, 1, op, now, nil, 0, now))
	mock.ExpectQuery(`INSERT INTO client_orders`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`INSERT INTO order_lines`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`INSERT INTO order_lines`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "ts"}).AddRow(int64(1), now))
	mock.ExpectCommit()

	// Post-commit recompute leaves the route blue: it has fresh work.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM route_days WHERE shift_id = \$1 AND route_norm = \$2 FOR UPDATE`).
		WithArgs("shift-new", "ruta norte").
		WillReturnRows(sqlmock.NewRows(routeDayCols).AddRow(
			"rd-new", "shift-new", "ruta norte",
			string(domain.VisualBlue), string(domain.RouteActive), 0, now, now))
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	lotes, lines, err := eng.Run(context.Background(), "shift-new", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lotes != 1 || lines != 2 {
		t.Fatalf("expected 1 lote / 2 lines, got %d / %d", lotes, lines)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRun_SkipsFullyPrintedClients(t *testing.T) {
	eng, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	loteCols := []string{
		"id", "shift_id", "imap_uidvalidity", "imap_uid", "received_at", "subject_raw", "body_raw",
		"parse_status", "parse_error", "route_norm", "route_day_id",
		"products_catalog_version", "routes_catalog_version", "carried_over", "source_lote_id", "created_at",
	}
	routeDayCols := []string{
		"id", "shift_id", "route_norm", "visual_state", "logical_state",
		"reactivations_count", "last_event_at", "created_at",
	}

	mock.ExpectQuery(`SELECT .* FROM shifts\s+WHERE state = 'CLOSED' AND id <> \$1`).
		WithArgs("shift-new").
		WillReturnRows(closedShiftRows("shift-old"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM lotes lo`).
		WithArgs("shift-old").
		WillReturnRows(sqlmock.NewRows(loteCols).AddRow(
			"lote-old", "shift-old", int64(7), int64(42), now, "RUTA NORTE", "body",
			string(domain.ParseOK), nil, "ruta norte", "rd-old", 3, 2, false, nil, now))
	mock.ExpectExec(`INSERT INTO route_days`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM route_days WHERE shift_id = \$1 AND route_norm = \$2`).
		WithArgs("shift-new", "ruta norte").
		WillReturnRows(sqlmock.NewRows(routeDayCols).AddRow(
			"rd-new", "shift-new", "ruta norte",
			string(domain.VisualBlue), string(domain.RouteActive), 0, now, now))
	mock.ExpectQuery(`INSERT INTO lotes`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`SELECT id, lote_id, seq, name_raw, affinity_key, observations, created_at\s+FROM client_orders`).
		WithArgs("lote-old").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lote_id", "seq", "name_raw", "affinity_key", "observations", "created_at",
		}).AddRow("co-old", "lote-old", 1, "Bar Pepe", "bar pepe", "", now))
	// Every line of the client already printed: no copy for this client.
	mock.ExpectQuery(`SELECT .* FROM order_lines WHERE client_order_id = \$1 AND printed_at IS NULL`).
		WithArgs("co-old").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "ts"}).AddRow(int64(1), now))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM route_days WHERE shift_id = \$1 AND route_norm = \$2 FOR UPDATE`).
		WithArgs("shift-new", "ruta norte").
		WillReturnRows(sqlmock.NewRows(routeDayCols).AddRow(
			"rd-new", "shift-new", "ruta norte",
			string(domain.VisualBlue), string(domain.RouteActive), 0, now, now))
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE route_days`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "ts"}).AddRow(int64(2), now))
	mock.ExpectCommit()

	lotes, lines, err := eng.Run(context.Background(), "shift-new", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lotes != 1 || lines != 0 {
		t.Fatalf("expected 1 lote / 0 lines, got %d / %d", lotes, lines)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
