package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/imapingest"
	"github.com/delsur/comandero/internal/pdfrender"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/repository/postgres"
	"github.com/delsur/comandero/internal/service/catalog"
	"github.com/delsur/comandero/internal/service/lote"
	"github.com/delsur/comandero/internal/service/printing"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/service/shift"
	"github.com/delsur/comandero/internal/storage"
)

type testAPI struct {
	handlers *Handlers
	router   http.Handler
	mock     sqlmock.Sqlmock
	bus      *events.Bus
}

func setupAPI(t *testing.T, imap ImapIngest) (*testAPI, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	bus := events.NewBus()
	bus.Start()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	publisher := events.NewPublisher(postgres.NewEventRepo(db), bus)
	routeSvc := routestate.NewService(db, bus)
	shiftSvc := shift.NewService(postgres.NewShiftRepo(db), publisher, db)
	loteSvc := lote.NewService(db, bus, routeSvc)
	printSvc := printing.NewService(db, bus, routeSvc, store, pdfrender.Passthrough{}, printing.NewTemplateEngine(""))
	catSvc := catalog.NewService(postgres.NewCatalogRepo(db), publisher)

	h := NewHandlers(db, bus, shiftSvc, routeSvc, loteSvc, printSvc, catSvc, imap)

	a := &testAPI{handlers: h, router: SetupRoutes(h, nil), mock: mock, bus: bus}
	return a, func() {
		bus.Stop()
		db.Close()
	}
}

func (a *testAPI) do(t *testing.T, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var er httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er
}

func shiftRows(state string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "shift_date", "slot", "state", "started_at", "scheduled_end_at",
		"ended_at", "ended_by", "created_at",
	}).AddRow("shift-1", now, "MORNING", state, now, now, nil, "", now)
}

func TestHealthReportsDBAndBus(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	rec := a.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "ok", st.Status)
	assert.True(t, st.DB)
	assert.False(t, st.ImapConnected)
	assert.Zero(t, st.SSESubscribers)
}

func TestOpenShiftValidation(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	rec := a.do(t, http.MethodPost, "/api/shifts/open", `{"slot":""}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_BLOCKED", decodeError(t, rec).Code)

	rec = a.do(t, http.MethodPost, "/api/shifts/open", `{"slot":"MORNING","date":"15-02-2026"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/shifts/open", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenShiftWhileAnotherActive(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	a.mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	a.mock.ExpectQuery("FROM shifts WHERE state = 'ACTIVE'").
		WillReturnRows(shiftRows(string(domain.ShiftActive)))
	a.mock.ExpectExec("pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := a.do(t, http.MethodPost, "/api/shifts/open", `{"slot":"MORNING","date":"2026-02-15"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SHIFT_ALREADY_ACTIVE", decodeError(t, rec).Code)
	require.NoError(t, a.mock.ExpectationsWereMet())
}

func TestActiveShiftNoneIs404(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	a.mock.ExpectQuery("FROM shifts WHERE state = 'ACTIVE'").
		WillReturnError(sql.ErrNoRows)

	rec := a.do(t, http.MethodGet, "/api/shifts/active", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_ACTIVE_SHIFT", decodeError(t, rec).Code)
}

func TestListRoutesReturnsSummaries(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	now := time.Now().UTC()
	a.mock.ExpectQuery("FROM route_days rd").WithArgs("shift-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "route_norm", "visual_state", "logical_state", "reactivations_count",
			"last_event_at", "unprinted", "total_lines", "total_clients", "lotes_count",
		}).
			AddRow("rd-1", "RUTA NORTE", "RED", "ACTIVE", 0, now, 3, 10, 4, 2).
			AddRow("rd-2", "RUTA SUR", "GREEN", "COLLECTED", 1, now, 0, 5, 2, 1))

	rec := a.do(t, http.MethodGet, "/api/routes?shift_id=shift-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sums []domain.RouteSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sums))
	require.Len(t, sums, 2)
	assert.Equal(t, "RUTA NORTE", sums[0].RouteNorm)
	assert.Equal(t, domain.VisualRed, sums[0].VisualState)
	assert.Equal(t, 3, sums[0].Unprinted)
	assert.Equal(t, domain.RouteCollected, sums[1].LogicalState)
}

func TestMarkCollectedUnknownRoute(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	a.mock.ExpectBegin()
	a.mock.ExpectQuery("FROM route_days WHERE id").WillReturnError(sql.ErrNoRows)
	a.mock.ExpectRollback()

	rec := a.do(t, http.MethodPost, "/api/routes/rd-missing/mark-collected", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", decodeError(t, rec).Code)
	require.NoError(t, a.mock.ExpectationsWereMet())
}

func TestOperatorEnterRequiresIdentity(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	rec := a.do(t, http.MethodPost, "/api/print/routes/rd-1/operator/enter", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_REQUIRED", decodeError(t, rec).Code)
}

func TestReprintUnknownJob(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	a.mock.ExpectQuery("FROM print_jobs WHERE id").WillReturnError(sql.ErrNoRows)

	rec := a.do(t, http.MethodPost, "/api/print/jobs/job-missing/reprint", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetLoteNotFound(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	a.mock.ExpectQuery("FROM lotes WHERE id").WillReturnError(sql.ErrNoRows)

	rec := a.do(t, http.MethodGet, "/api/lotes/lote-missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LOTE_NOT_FOUND", decodeError(t, rec).Code)
}

func TestUploadRoutesRejectsEmptyEntries(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	rec := a.do(t, http.MethodPost, "/api/catalogs/routes", `{"entries":["", "  "]}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_BLOCKED", decodeError(t, rec).Code)
}

func TestActivateCatalogBadVersion(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	rec := a.do(t, http.MethodPost, "/api/catalogs/products/abc/activate", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEventsFiltersAndPages(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	ts := time.Now().UTC()
	a.mock.ExpectQuery("SELECT COUNT").WithArgs("LOTE_PROCESSED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	a.mock.ExpectQuery("SELECT id, seq, ts").WithArgs("LOTE_PROCESSED", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "seq", "ts", "type", "entity_type", "entity_id", "actor_user_id", "payload",
		}).
			AddRow("ev-2", 9, ts, "LOTE_PROCESSED", "lote", "lote-2", nil, []byte(`{"route":"RUTA SUR"}`)).
			AddRow("ev-1", 8, ts.Add(-time.Minute), "LOTE_PROCESSED", "lote", "lote-1", nil, []byte(`{"route":"RUTA NORTE"}`)))

	rec := a.do(t, http.MethodGet, "/api/events?type=LOTE_PROCESSED&limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, int64(5), resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Limit)
	assert.Equal(t, "RUTA SUR", resp.Events[0].Payload["route"])
	require.NoError(t, a.mock.ExpectationsWereMet())
}

type imapStub struct {
	status  imapingest.Status
	pollErr error
	polls   int
}

func (s *imapStub) Status(ctx context.Context) imapingest.Status { return s.status }
func (s *imapStub) PollOnce(ctx context.Context) error {
	s.polls++
	return s.pollErr
}

func TestImapStatusNotConfigured(t *testing.T) {
	a, done := setupAPI(t, nil)
	defer done()

	rec := a.do(t, http.MethodGet, "/api/imap/status", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "IMAP_UNAVAILABLE", decodeError(t, rec).Code)
}

func TestImapStatusReportsCursor(t *testing.T) {
	uv := int64(7)
	stub := &imapStub{status: imapingest.Status{
		Running:   true,
		Connected: true,
		Cursor:    imapingest.CursorStatus{LastUID: 42, UIDValidity: &uv},
	}}
	a, done := setupAPI(t, stub)
	defer done()

	rec := a.do(t, http.MethodGet, "/api/imap/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st imapingest.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Running)
	assert.Equal(t, int64(42), st.Cursor.LastUID)
	require.NotNil(t, st.Cursor.UIDValidity)
	assert.Equal(t, int64(7), *st.Cursor.UIDValidity)
}

func TestImapForcePoll(t *testing.T) {
	stub := &imapStub{}
	a, done := setupAPI(t, stub)
	defer done()

	rec := a.do(t, http.MethodPost, "/api/imap/force-poll", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.polls)

	stub.pollErr = context.DeadlineExceeded
	rec = a.do(t, http.MethodPost, "/api/imap/force-poll", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "IMAP_UNAVAILABLE", decodeError(t, rec).Code)
}
