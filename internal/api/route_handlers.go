package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/repository/postgres"
)

// ListRoutes returns the per-route dispatch summary the wall display renders.
// shift_id defaults to the active shift.
func (h *Handlers) ListRoutes(w http.ResponseWriter, r *http.Request) {
	shiftID := r.URL.Query().Get("shift_id")
	if shiftID == "" {
		sh, err := h.shifts.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		shiftID = sh.ID
	}

	sums, err := postgres.NewRouteRepo(h.db).Summaries(r.Context(), shiftID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sums == nil {
		sums = []domain.RouteSummary{}
	}
	httputil.OK(w, sums)
}

// MarkRouteCollected flips the route's logical state to COLLECTED.
func (h *Handlers) MarkRouteCollected(w http.ResponseWriter, r *http.Request) {
	if _, err := h.routes.MarkCollected(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"ok": true})
}

// ReactivateRoute flips a COLLECTED route back to ACTIVE.
func (h *Handlers) ReactivateRoute(w http.ResponseWriter, r *http.Request) {
	if _, err := h.routes.Reactivate(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"ok": true})
}
