package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
)

type operatorRequest struct {
	OperatorID string `json:"operator_id"`
}

// decodeOperator resolves the acting operator: explicit operator_id in the
// body first, X-Actor-Id header second. Writes the error response itself.
func (h *Handlers) decodeOperator(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req operatorRequest
	if r.ContentLength > 0 {
		if !httputil.Decode(w, r, &req) {
			return "", false
		}
	}
	op := strings.TrimSpace(req.OperatorID)
	if op == "" {
		op = actor(r)
	}
	if op == "" {
		httputil.Error(w, http.StatusUnauthorized, codeAuthRequired,
			"operator identity required (operator_id or X-Actor-Id)")
		return "", false
	}
	return op, true
}

// actorOr falls back to the operator when no explicit attribution header was
// sent: the operator pressing the button is the actor.
func actorOr(r *http.Request, fallback string) string {
	if a := actor(r); a != "" {
		return a
	}
	return fallback
}

type enterResponse struct {
	Entered         bool      `json:"entered"`
	EnteredAt       time.Time `json:"entered_at"`
	CutoffLote      *string   `json:"cutoff_lote"`
	LastPrintedLote *string   `json:"last_printed_lote"`
}

// OperatorEnter records the operator on the route, freezing the snapshot
// cutoff on first enter. Re-entering is a no-op that returns the same state.
func (h *Handlers) OperatorEnter(w http.ResponseWriter, r *http.Request) {
	op, ok := h.decodeOperator(w, r)
	if !ok {
		return
	}
	prog, err := h.printing.EnterRoute(r.Context(), chi.URLParam(r, "id"), op)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, enterResponse{
		Entered:         true,
		EnteredAt:       prog.EnteredAt,
		CutoffLote:      prog.CutoffLoteID,
		LastPrintedLote: prog.LastPrintedLoteID,
	})
}

type printJobResponse struct {
	JobID      string                `json:"job_id"`
	Kind       domain.PrintJobKind   `json:"kind"`
	Status     domain.PrintJobStatus `json:"status"`
	LinesCount int                   `json:"lines_count"`
	PDFURL     string                `json:"pdf_url"`
}

func newPrintJobResponse(job *domain.PrintJob) printJobResponse {
	return printJobResponse{
		JobID:      job.ID,
		Kind:       job.Kind,
		Status:     job.Status,
		LinesCount: job.LinesCount,
		PDFURL:     "/api/print/jobs/" + job.ID + "/pdf",
	}
}

// OperatorPrintInitial prints the operator's snapshot up to the cutoff.
func (h *Handlers) OperatorPrintInitial(w http.ResponseWriter, r *http.Request) {
	op, ok := h.decodeOperator(w, r)
	if !ok {
		return
	}
	job, err := h.printing.PrintInitial(r.Context(), chi.URLParam(r, "id"), op, actorOr(r, op))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, newPrintJobResponse(job))
}

// OperatorPrintNew prints the operator's lines that arrived after their last
// print.
func (h *Handlers) OperatorPrintNew(w http.ResponseWriter, r *http.Request) {
	op, ok := h.decodeOperator(w, r)
	if !ok {
		return
	}
	job, err := h.printing.PrintNew(r.Context(), chi.URLParam(r, "id"), op, actorOr(r, op))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, newPrintJobResponse(job))
}

// CollectorPrintNew prints the route-wide collection sheet since the route's
// last collector print.
func (h *Handlers) CollectorPrintNew(w http.ResponseWriter, r *http.Request) {
	job, err := h.printing.CollectorPrintNew(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, newPrintJobResponse(job))
}

// Reprint re-renders the exact line set of a previous job. Cursors do not
// move; the lines' print counters do.
func (h *Handlers) Reprint(w http.ResponseWriter, r *http.Request) {
	job, err := h.printing.Reprint(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, newPrintJobResponse(job))
}

// GetPrintJob returns one print job row.
func (h *Handlers) GetPrintJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.printing.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, job)
}

// ListPrintJobs returns the shift's print jobs, newest first. shift_id
// defaults to the active shift.
func (h *Handlers) ListPrintJobs(w http.ResponseWriter, r *http.Request) {
	shiftID := r.URL.Query().Get("shift_id")
	if shiftID == "" {
		sh, err := h.shifts.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		shiftID = sh.ID
	}

	jobs, err := h.printing.Jobs(r.Context(), shiftID, atoiDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.PrintJob{}
	}
	httputil.OK(w, jobs)
}

// GetPrintJobDocument streams the rendered comanda document.
func (h *Handlers) GetPrintJobDocument(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rc, contentType, err := h.printing.JobDocument(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	ext := "html"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	name := jobID
	if len(name) > 8 {
		name = name[:8]
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "comanda-"+name+"."+ext))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("[api] stream job %s document: %v", jobID, err)
	}
}
