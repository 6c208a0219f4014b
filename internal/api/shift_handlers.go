package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
)

type openShiftRequest struct {
	Slot string `json:"slot"`
	Date string `json:"date"`
}

// shiftEnvelope is the shift plus the per-shift configuration the stations
// need to render their screens.
type shiftEnvelope struct {
	domain.Shift
	Qualifications []domain.Qualification  `json:"qualifications"`
	Collectors     []domain.RouteCollector `json:"collectors"`
}

// OpenShift activates a shift for (date, slot). Date defaults to today.
func (h *Handlers) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req openShiftRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Slot == "" {
		httputil.BadRequest(w, "slot is required")
		return
	}
	date := time.Now().UTC()
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httputil.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	sh, err := h.shifts.Open(r.Context(), req.Slot, date, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, sh)
}

// CloseShift closes the active shift by id.
func (h *Handlers) CloseShift(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shifts.Close(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, sh)
}

// ActiveShift returns the single ACTIVE shift with its configuration.
func (h *Handlers) ActiveShift(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shifts.Active(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeShiftEnvelope(w, r, sh)
}

// GetShift returns one shift by id with its configuration.
func (h *Handlers) GetShift(w http.ResponseWriter, r *http.Request) {
	sh, err := h.shifts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeShiftEnvelope(w, r, sh)
}

func (h *Handlers) writeShiftEnvelope(w http.ResponseWriter, r *http.Request, sh *domain.Shift) {
	quals, err := h.shifts.Qualifications(r.Context(), sh.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	colls, err := h.shifts.Collectors(r.Context(), sh.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if quals == nil {
		quals = []domain.Qualification{}
	}
	if colls == nil {
		colls = []domain.RouteCollector{}
	}
	httputil.OK(w, shiftEnvelope{Shift: *sh, Qualifications: quals, Collectors: colls})
}

// ListQualifications returns the shift's operator pool rows.
func (h *Handlers) ListQualifications(w http.ResponseWriter, r *http.Request) {
	quals, err := h.shifts.Qualifications(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if quals == nil {
		quals = []domain.Qualification{}
	}
	httputil.OK(w, quals)
}

type qualificationEntry struct {
	UserID         string `json:"user_id"`
	FunctionalCode int    `json:"functional_code"`
	Enabled        *bool  `json:"enabled"`
}

type putQualificationsRequest struct {
	Qualifications []qualificationEntry `json:"qualifications"`
}

// PutQualifications replaces the shift's operator pool. Omitted enabled
// flags default to true.
func (h *Handlers) PutQualifications(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "id")
	var req putQualificationsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	rows := make([]domain.Qualification, 0, len(req.Qualifications))
	for _, e := range req.Qualifications {
		if e.UserID == "" {
			httputil.BadRequest(w, "qualification user_id is required")
			return
		}
		if e.FunctionalCode < 1 || e.FunctionalCode > 6 {
			httputil.BadRequest(w, "functional_code must be between 1 and 6")
			return
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		rows = append(rows, domain.Qualification{
			ShiftID:        shiftID,
			UserID:         e.UserID,
			FunctionalCode: e.FunctionalCode,
			Enabled:        enabled,
		})
	}

	if err := h.shifts.ReplaceQualifications(r.Context(), shiftID, rows); err != nil {
		writeError(w, err)
		return
	}
	h.ListQualifications(w, r)
}

// ListCollectors returns the shift's route→collector map.
func (h *Handlers) ListCollectors(w http.ResponseWriter, r *http.Request) {
	colls, err := h.shifts.Collectors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if colls == nil {
		colls = []domain.RouteCollector{}
	}
	httputil.OK(w, colls)
}

type collectorEntry struct {
	RouteNorm string  `json:"route_norm"`
	UserID    *string `json:"user_id"`
}

type putCollectorsRequest struct {
	Collectors []collectorEntry `json:"collectors"`
}

// PutCollectors upserts route→collector bindings. A null user_id clears the
// binding for that route.
func (h *Handlers) PutCollectors(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "id")
	var req putCollectorsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	for _, e := range req.Collectors {
		if e.RouteNorm == "" {
			httputil.BadRequest(w, "collector route_norm is required")
			return
		}
		if err := h.shifts.SetCollector(r.Context(), shiftID, e.RouteNorm, e.UserID); err != nil {
			writeError(w, err)
			return
		}
	}
	h.ListCollectors(w, r)
}
