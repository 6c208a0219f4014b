package api

import (
	"net/http"
	"time"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/repository/postgres"
)

type eventsResponse struct {
	Events     []domain.Event `json:"events"`
	Pagination pagination     `json:"pagination"`
}

// ListEvents pages through the persisted event log, newest first. Filters:
// type, entity_type, entity_id, since, until (RFC3339).
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := postgres.EventFilter{
		Type:       q.Get("type"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Limit:      atoiDefault(q.Get("limit"), 0),
		Offset:     atoiDefault(q.Get("offset"), 0),
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.BadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		f.Since = &t
	}
	if s := q.Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.BadRequest(w, "until must be an RFC3339 timestamp")
			return
		}
		f.Until = &t
	}

	evs, total, err := postgres.NewEventRepo(h.db).List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	httputil.OK(w, eventsResponse{
		Events:     evs,
		Pagination: pagination{Total: total, Limit: limit, Offset: f.Offset},
	})
}
