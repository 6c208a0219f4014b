package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/repository/postgres"
)

type lotesResponse struct {
	Lotes      []domain.Lote `json:"lotes"`
	Pagination pagination    `json:"pagination"`
}

// ListLotes pages through ingested lotes for triage. status filters on
// parse_status (OK, PENDING, ERROR_ROUTE, ERROR_PARSE).
func (h *Handlers) ListLotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := postgres.LoteFilter{
		ShiftID: q.Get("shift_id"),
		Status:  q.Get("status"),
		Limit:   atoiDefault(q.Get("limit"), 0),
		Offset:  atoiDefault(q.Get("offset"), 0),
	}

	lotes, total, err := h.lotes.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if lotes == nil {
		lotes = []domain.Lote{}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	httputil.OK(w, lotesResponse{
		Lotes:      lotes,
		Pagination: pagination{Total: total, Limit: limit, Offset: f.Offset},
	})
}

// GetLote returns one lote with its parsed client orders and lines.
func (h *Handlers) GetLote(w http.ResponseWriter, r *http.Request) {
	detail, err := h.lotes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, detail)
}

type reprocessRequest struct {
	Rebind bool `json:"rebind"`
}

// ReprocessLote re-runs the processing pipeline on a failed lote, typically
// after a catalog fix. rebind=true re-snapshots the active catalog versions.
func (h *Handlers) ReprocessLote(w http.ResponseWriter, r *http.Request) {
	rebind := r.URL.Query().Get("rebind") == "true"
	if r.ContentLength > 0 {
		var req reprocessRequest
		if !httputil.Decode(w, r, &req) {
			return
		}
		rebind = rebind || req.Rebind
	}

	l, err := h.lotes.Reprocess(r.Context(), chi.URLParam(r, "id"), rebind, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, l)
}
