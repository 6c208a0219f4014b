package printing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/pdfrender"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/storage"
)

func setupTest(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	bus := events.NewBus()
	bus.Start()
	svc := NewService(db, bus, routestate.NewService(db, bus),
		store, pdfrender.Passthrough{}, NewTemplateEngine(""))
	return svc, mock, func() {
		bus.Stop()
		db.Close()
	}
}

var routeDayCols = []string{
	"id", "shift_id", "route_norm", "visual_state", "logical_state",
	"reactivations_count", "last_event_at", "created_at",
}

func routeDayRows(visual, logical string, reacts int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(routeDayCols).AddRow(
		"rd-1", "shift-1", "ruta norte", visual, logical, reacts, now, now)
}

var shiftCols = []string{
	"id", "shift_date", "slot", "state", "started_at", "scheduled_end_at", "ended_at", "ended_by", "created_at",
}

func shiftRows(state string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(shiftCols).AddRow(
		"shift-1", now, "MANANA", state, now, now.Add(8*time.Hour), nil, "", now)
}

var progressCols = []string{
	"shift_id", "operator_id", "route_norm", "entered_at", "cutoff_lote_id", "last_printed_lote_id", "last_printed_at",
}

var printLineCols = []string{
	"line_id", "client_order_id", "lote_id", "lote_created_at", "name_raw", "observations", "client_seq", "line_seq",
	"quantity", "unit_raw", "product_raw", "product_norm", "price", "currency", "family", "operator_id", "printed_at",
}

func eventInsertRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"seq", "ts"}).AddRow(int64(1), time.Now())
}

func jobInsertRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now())
}

func expectResolveActiveRoute(mock sqlmock.Sqlmock, rd *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT .* FROM route_days WHERE id = \$1`).
		WithArgs("rd-1").
		WillReturnRows(rd)
	mock.ExpectQuery(`SELECT .* FROM shifts WHERE id = \$1`).
		WithArgs("shift-1").
		WillReturnRows(shiftRows(string(domain.ShiftActive)))
}

func TestEnterRoute_FirstEnterFreezesCutoff(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	expectResolveActiveRoute(mock, routeDayRows("BLUE", "ACTIVE", 0))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM lotes`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lote-5"))
	mock.ExpectExec(`INSERT INTO operator_route_progress`).
		WithArgs("shift-1", "op-1", "ruta norte", sqlmock.AnyArg(), "lote-5").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WithArgs("shift-1", "op-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", now, "lote-5", nil, nil))

	prog, err := svc.EnterRoute(context.Background(), "rd-1", "op-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog.CutoffLoteID == nil || *prog.CutoffLoteID != "lote-5" {
		t.Fatalf("expected cutoff lote-5, got %v", prog.CutoffLoteID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnterRoute_ReenterKeepsCutoff(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	expectResolveActiveRoute(mock, routeDayRows("BLUE", "ACTIVE", 0))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM lotes`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lote-9"))
	// The row exists: the stored cutoff wins, no event.
	mock.ExpectExec(`INSERT INTO operator_route_progress`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WithArgs("shift-1", "op-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", now, "lote-5", "lote-5", now))

	prog, err := svc.EnterRoute(context.Background(), "rd-1", "op-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog.CutoffLoteID == nil || *prog.CutoffLoteID != "lote-5" {
		t.Fatalf("expected original cutoff lote-5, got %v", prog.CutoffLoteID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnterRoute_CollectedRouteReactivates(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	expectResolveActiveRoute(mock, routeDayRows("RED", "COLLECTED", 1))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM lotes`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("lote-9"))
	mock.ExpectExec(`INSERT INTO operator_route_progress`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	// Entering collected work reopens the route.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM route_days WHERE id = \$1 FOR UPDATE`).
		WithArgs("rd-1").
		WillReturnRows(routeDayRows("RED", "COLLECTED", 1))
	mock.ExpectExec(`UPDATE route_days`).
		WithArgs("rd-1", "RED", "ACTIVE", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", now, "lote-9", nil, nil))

	if _, err := svc.EnterRoute(context.Background(), "rd-1", "op-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnterRoute_ClosedShiftRejected(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	mock.ExpectQuery(`SELECT .* FROM route_days WHERE id = \$1`).
		WithArgs("rd-1").
		WillReturnRows(routeDayRows("BLUE", "ACTIVE", 0))
	mock.ExpectQuery(`SELECT .* FROM shifts WHERE id = \$1`).
		WithArgs("shift-1").
		WillReturnRows(shiftRows(string(domain.ShiftClosed)))

	_, err := svc.EnterRoute(context.Background(), "rd-1", "op-1")
	if !errors.Is(err, ErrShiftNotActive) {
		t.Fatalf("expected ErrShiftNotActive, got %v", err)
	}
}

func TestPrintInitial_RequiresEnter(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	expectResolveActiveRoute(mock, routeDayRows("BLUE", "ACTIVE", 0))
	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WithArgs("shift-1", "op-1", "ruta norte").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.PrintInitial(context.Background(), "rd-1", "op-1", "op-1")
	if !errors.Is(err, ErrNoEnter) {
		t.Fatalf("expected ErrNoEnter, got %v", err)
	}
}

func TestPrintInitial_EmptyRouteNothingToPrint(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	expectResolveActiveRoute(mock, routeDayRows("BLUE", "ACTIVE", 0))
	// Entered before any lote arrived: no cutoff, nothing to snapshot.
	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", time.Now(), nil, nil, nil))

	_, err := svc.PrintInitial(context.Background(), "rd-1", "op-1", "op-1")
	if !errors.Is(err, ErrNothingToPrint) {
		t.Fatalf("expected ErrNothingToPrint, got %v", err)
	}
}

func TestPrintInitial_HappyPath(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	price := 12.5
	expectResolveActiveRoute(mock, routeDayRows("BLUE", "ACTIVE", 0))
	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WithArgs("shift-1", "op-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", now, "lote-5", nil, nil))

	mock.ExpectQuery(`JOIN lotes cut ON cut\.id = \$4`).
		WithArgs("shift-1", "ruta norte", "op-1", "lote-5").
		WillReturnRows(sqlmock.NewRows(printLineCols).
			AddRow("line-1", "co-1", "lote-5", now, "Bar Pepe", "entregar temprano", 1, 1,
				2.0, "cajas", "manzana golden", "manzana golden", price, "EUR", 1, "op-1", nil).
			AddRow("line-2", "co-1", "lote-5", now, "Bar Pepe", "entregar temprano", 1, 2,
				1.0, "uds", "pan rustico", "pan rustico", nil, "EUR", 2, "op-1", nil))

	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
		WithArgs("op-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Pepe Ruiz"))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO print_jobs`).
		WillReturnRows(jobInsertRows())
	mock.ExpectExec(`INSERT INTO print_job_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO print_job_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_lines`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE operator_route_progress`).
		WithArgs("shift-1", "op-1", "ruta norte", "lote-5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	// Everything is printed now: the recompute turns the route green.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM route_days WHERE shift_id = \$1 AND route_norm = \$2 FOR UPDATE`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(routeDayRows("BLUE", "ACTIVE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE route_days`).
		WithArgs("rd-1", "GREEN", "ACTIVE", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	job, err := svc.PrintInitial(context.Background(), "rd-1", "op-1", "op-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Kind != domain.PrintOperatorInitial {
		t.Errorf("expected OPERATOR_INITIAL, got %s", job.Kind)
	}
	if job.Status != domain.PrintJobPDFReady {
		t.Errorf("expected PDF_READY, got %s", job.Status)
	}
	if job.LinesCount != 2 {
		t.Errorf("expected 2 lines, got %d", job.LinesCount)
	}
	if job.PDFRef == nil || !strings.HasSuffix(*job.PDFRef, ".html") {
		t.Fatalf("expected stored html document, got %v", job.PDFRef)
	}

	rc, err := svc.store.Get(context.Background(), *job.PDFRef)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	defer rc.Close()
	doc, _ := io.ReadAll(rc)
	for _, want := range []string{"RUTA NORTE", "BAR PEPE", "12,50", "PEPE RUIZ", "entregar temprano"} {
		if !strings.Contains(string(doc), want) {
			t.Errorf("document missing %q", want)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPrintNew_RequiresInitialFirst(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	expectResolveActiveRoute(mock, routeDayRows("BLUE", "ACTIVE", 0))
	// Cutoff frozen but never printed: the snapshot must come first.
	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", time.Now(), "lote-5", nil, nil))

	_, err := svc.PrintNew(context.Background(), "rd-1", "op-1", "op-1")
	if !errors.Is(err, ErrNoInitial) {
		t.Fatalf("expected ErrNoInitial, got %v", err)
	}
}

func TestPrintNew_EmptySelectionNothingToPrint(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	expectResolveActiveRoute(mock, routeDayRows("GREEN", "ACTIVE", 0))
	// Entered an empty route: no cutoff, new work prints directly.
	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", time.Now(), nil, nil, nil))
	mock.ExpectQuery(`FROM order_lines ol`).
		WithArgs("shift-1", "ruta norte", "op-1").
		WillReturnRows(sqlmock.NewRows(printLineCols))

	_, err := svc.PrintNew(context.Background(), "rd-1", "op-1", "op-1")
	if !errors.Is(err, ErrNothingToPrint) {
		t.Fatalf("expected ErrNothingToPrint, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

type failRenderer struct{}

func (failRenderer) Render(ctx context.Context, html []byte) ([]byte, string, error) {
	return nil, "", errors.New("wkhtmltopdf: exit status 1")
}

func TestPrintInitial_RenderFailureRecordsFailedJob(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()
	svc.renderer = failRenderer{}

	now := time.Now()
	expectResolveActiveRoute(mock, routeDayRows("RED", "ACTIVE", 0))
	mock.ExpectQuery(`SELECT .* FROM operator_route_progress`).
		WillReturnRows(sqlmock.NewRows(progressCols).
			AddRow("shift-1", "op-1", "ruta norte", now, "lote-5", nil, nil))
	mock.ExpectQuery(`JOIN lotes cut ON cut\.id = \$4`).
		WillReturnRows(sqlmock.NewRows(printLineCols).
			AddRow("line-1", "co-1", "lote-5", now, "Bar Pepe", "", 1, 1,
				2.0, "cajas", "manzana golden", "manzana golden", nil, "EUR", 1, "op-1", nil))
	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Pepe Ruiz"))

	// Only the FAILED job row lands: no items, no stamps, no cursor move.
	mock.ExpectQuery(`INSERT INTO print_jobs`).
		WillReturnRows(jobInsertRows())

	_, err := svc.PrintInitial(context.Background(), "rd-1", "op-1", "op-1")
	if err == nil || !strings.Contains(err.Error(), "wkhtmltopdf") {
		t.Fatalf("expected render failure, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCollectorPrintNew_HappyPath(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	expectResolveActiveRoute(mock, routeDayRows("GREEN", "ACTIVE", 0))

	mock.ExpectExec(`INSERT INTO collector_route_progress`).
		WithArgs("shift-1", "ruta norte").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM collector_route_progress`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows([]string{"shift_id", "route_norm", "last_closed_lote_id", "last_closed_at"}).
			AddRow("shift-1", "ruta norte", nil, nil))

	mock.ExpectQuery(`FROM order_lines ol`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(sqlmock.NewRows(printLineCols).
			AddRow("line-1", "co-1", "lote-5", now, "Bar Pepe", "", 1, 1,
				2.0, "cajas", "manzana golden", "manzana golden", nil, "EUR", 1, "op-1", now))
	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
		WithArgs("op-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Pepe Ruiz"))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO print_jobs`).
		WillReturnRows(jobInsertRows())
	mock.ExpectExec(`INSERT INTO print_job_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_lines`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE collector_route_progress`).
		WithArgs("shift-1", "ruta norte", "lote-5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	// Already green and still fully printed: recompute leaves it alone.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM route_days WHERE shift_id = \$1 AND route_norm = \$2 FOR UPDATE`).
		WillReturnRows(routeDayRows("GREEN", "ACTIVE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	job, err := svc.CollectorPrintNew(context.Background(), "rd-1", "collector-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Kind != domain.PrintCollectorNew {
		t.Errorf("expected COLLECTOR_NEW, got %s", job.Kind)
	}
	if job.OperatorID != nil {
		t.Errorf("collector jobs carry no operator, got %v", *job.OperatorID)
	}
	if job.ToLoteID == nil || *job.ToLoteID != "lote-5" {
		t.Errorf("expected window end lote-5, got %v", job.ToLoteID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReprint_DoesNotAdvanceCursors(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	now := time.Now()
	jobCols := []string{
		"id", "shift_id", "route_norm", "kind", "status", "actor_user_id", "operator_id",
		"pdf_ref", "error_text", "lines_count", "cutoff_lote_id", "from_lote_id", "to_lote_id", "source_job_id", "created_at",
	}
	mock.ExpectQuery(`SELECT .* FROM print_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobCols).AddRow(
			"job-1", "shift-1", "ruta norte", "OPERATOR_NEW", "PDF_READY", "op-1", "op-1",
			"jobs/2026/08/24/job-1.html", nil, 1, nil, "lote-4", "lote-5", nil, now))
	mock.ExpectQuery(`SELECT line_id FROM print_job_items`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"line_id"}).AddRow("line-1"))
	mock.ExpectQuery(`WHERE ol\.id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(printLineCols).
			AddRow("line-1", "co-1", "lote-5", now, "Bar Pepe", "", 1, 1,
				2.0, "cajas", "manzana golden", "manzana golden", nil, "EUR", 1, "op-1", now))

	mock.ExpectExec(`INSERT INTO route_days`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM route_days WHERE shift_id = \$1 AND route_norm = \$2`).
		WithArgs("shift-1", "ruta norte").
		WillReturnRows(routeDayRows("GREEN", "COLLECTED", 0))
	// Reprints stay available after the shift closes.
	mock.ExpectQuery(`SELECT .* FROM shifts WHERE id = \$1`).
		WithArgs("shift-1").
		WillReturnRows(shiftRows(string(domain.ShiftClosed)))

	mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Pepe Ruiz"))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO print_jobs`).
		WillReturnRows(jobInsertRows())
	mock.ExpectExec(`INSERT INTO print_job_items`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_lines`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No progress update between stamp and event: cursors stay put.
	mock.ExpectQuery(`INSERT INTO events`).
		WillReturnRows(eventInsertRows())
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM route_days WHERE shift_id = \$1 AND route_norm = \$2 FOR UPDATE`).
		WillReturnRows(routeDayRows("GREEN", "COLLECTED", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	job, err := svc.Reprint(context.Background(), "job-1", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Kind != domain.PrintReprint {
		t.Errorf("expected REPRINT, got %s", job.Kind)
	}
	if job.SourceJobID == nil || *job.SourceJobID != "job-1" {
		t.Errorf("expected source job-1, got %v", job.SourceJobID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReprint_UnknownJob(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	mock.ExpectQuery(`SELECT .* FROM print_jobs WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Reprint(context.Background(), "nope", "admin")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobDocument_FailedJobHasNoDocument(t *testing.T) {
	svc, mock, done := setupTest(t)
	defer done()

	jobCols := []string{
		"id", "shift_id", "route_norm", "kind", "status", "actor_user_id", "operator_id",
		"pdf_ref", "error_text", "lines_count", "cutoff_lote_id", "from_lote_id", "to_lote_id", "source_job_id", "created_at",
	}
	mock.ExpectQuery(`SELECT .* FROM print_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobCols).AddRow(
			"job-1", "shift-1", "ruta norte", "OPERATOR_NEW", "FAILED", nil, "op-1",
			nil, "render failed", 3, nil, nil, nil, nil, time.Now()))

	_, _, err := svc.JobDocument(context.Background(), "job-1")
	if !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}
