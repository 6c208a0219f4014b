// Package api exposes the comandero core over HTTP/JSON: shift lifecycle,
// per-route dispatch state, the print endpoints the operator and collector
// stations call, lote triage, catalog activation, and the SSE stream that
// feeds the warehouse wall display.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/imapingest"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/service/catalog"
	"github.com/delsur/comandero/internal/service/lote"
	"github.com/delsur/comandero/internal/service/printing"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/service/shift"
)

// ImapIngest is the slice of the mailbox worker the API needs for the debug
// endpoints. The real implementation is *imapingest.Worker; tests plug stubs.
type ImapIngest interface {
	Status(ctx context.Context) imapingest.Status
	PollOnce(ctx context.Context) error
}

// Handlers bundles the service layer behind the HTTP surface.
type Handlers struct {
	db       *sql.DB
	bus      *events.Bus
	shifts   *shift.Service
	routes   *routestate.Service
	lotes    *lote.Service
	printing *printing.Service
	catalogs *catalog.Service
	imap     ImapIngest
	started  time.Time
}

// NewHandlers wires the handler set. imap may be nil when ingest is not
// configured; the imap endpoints then answer 503.
func NewHandlers(
	db *sql.DB,
	bus *events.Bus,
	shifts *shift.Service,
	routes *routestate.Service,
	lotes *lote.Service,
	printSvc *printing.Service,
	catalogs *catalog.Service,
	imap ImapIngest,
) *Handlers {
	return &Handlers{
		db:       db,
		bus:      bus,
		shifts:   shifts,
		routes:   routes,
		lotes:    lotes,
		printing: printSvc,
		catalogs: catalogs,
		imap:     imap,
		started:  time.Now().UTC(),
	}
}

// actor returns the optional X-Actor-Id attribution header. Role gating
// happens at the gateway in front; the core only records who acted.
func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Actor-Id"))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// pagination echoes the effective page window alongside the total match
// count, so clients can page without re-deriving the defaults.
type pagination struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type healthStatus struct {
	Status         string    `json:"status"`
	DB             bool      `json:"db"`
	ImapConnected  bool      `json:"imap_connected"`
	SSESubscribers int       `json:"sse_subscribers"`
	StartedAt      time.Time `json:"started_at"`
}

// HealthCheck reports process liveness plus the state of the two external
// legs (database, mailbox connection).
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st := healthStatus{
		Status:         "ok",
		SSESubscribers: h.bus.Subscribers(),
		StartedAt:      h.started,
	}
	if err := h.db.PingContext(ctx); err != nil {
		st.Status = "degraded"
	} else {
		st.DB = true
	}
	if h.imap != nil {
		st.ImapConnected = h.imap.Status(ctx).Connected
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, st)
}
