// Package printing emits comanda documents: the operator's initial snapshot,
// the operator's incremental "new work" slips, the collector's recap sheet,
// and reprints of any previous job.
//
// A print is two phases. The document is rendered and stored first, outside
// any transaction; only when the blob exists does one transaction record the
// job, stamp the lines, and advance the print cursor. A render or storage
// failure leaves a FAILED job behind for triage and touches nothing else.
package printing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/pdfrender"
	"github.com/delsur/comandero/internal/repository/postgres"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/storage"
)

// Service coordinates selectors, rendering, storage, and print bookkeeping.
type Service struct {
	db        *sql.DB
	bus       *events.Bus
	routes    *routestate.Service
	store     storage.Store
	renderer  pdfrender.Renderer
	templates *TemplateEngine
}

// NewService creates a printing service.
func NewService(db *sql.DB, bus *events.Bus, routes *routestate.Service,
	store storage.Store, renderer pdfrender.Renderer, templates *TemplateEngine) *Service {
	return &Service{
		db:        db,
		bus:       bus,
		routes:    routes,
		store:     store,
		renderer:  renderer,
		templates: templates,
	}
}

// resolveActiveRoute loads the route day and checks its shift still accepts
// printing.
func (s *Service) resolveActiveRoute(ctx context.Context, routeDayID string) (*domain.RouteDay, *domain.Shift, error) {
	rd, err := postgres.NewRouteRepo(s.db).Get(ctx, routeDayID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	sh, err := postgres.NewShiftRepo(s.db).Get(ctx, rd.ShiftID)
	if err != nil {
		return nil, nil, err
	}
	if !sh.IsActive() {
		return nil, nil, ErrShiftNotActive
	}
	return rd, sh, nil
}

// EnterRoute registers the operator on the route. The first enter freezes
// the print cutoff at the route's latest processed lote (or none, for an
// empty route); re-entering never moves it. Entering a collected route
// reactivates it.
func (s *Service) EnterRoute(ctx context.Context, routeDayID, operatorID string) (*domain.OperatorRouteProgress, error) {
	rd, _, err := s.resolveActiveRoute(ctx, routeDayID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enter: %w", err)
	}
	defer tx.Rollback()

	cutoff, err := postgres.NewLoteRepo(tx).LatestOK(ctx, rd.ShiftID, rd.RouteNorm)
	if err != nil {
		return nil, err
	}
	created, err := postgres.NewProgressRepo(tx).EnterOperator(
		ctx, rd.ShiftID, operatorID, rd.RouteNorm, cutoff, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var evs []domain.Event
	if created {
		payload := map[string]interface{}{
			"route":       rd.RouteNorm,
			"operator_id": operatorID,
		}
		if cutoff != nil {
			payload["cutoff_lote_id"] = *cutoff
		}
		ev := events.New(domain.EventOperatorEnteredRoute, domain.EntityRouteDay, rd.ID, payload)
		ev = events.WithActor(ev, operatorID)
		if err := postgres.NewEventRepo(tx).Append(ctx, &ev); err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enter: %w", err)
	}
	s.bus.Broadcast(evs...)

	if rd.LogicalState == domain.RouteCollected {
		if _, err := s.routes.Reactivate(ctx, rd.ID, operatorID); err != nil {
			log.Printf("[Printing] reactivate %s: %v", rd.RouteNorm, err)
		}
	}

	return postgres.NewProgressRepo(s.db).Operator(ctx, rd.ShiftID, operatorID, rd.RouteNorm)
}

// PrintInitial emits the operator's snapshot: everything assigned to them up
// to the cutoff frozen when they entered. Printing it again re-emits the
// same window and bumps print counts; the cursor is already at the cutoff.
func (s *Service) PrintInitial(ctx context.Context, routeDayID, operatorID, actorID string) (*domain.PrintJob, error) {
	rd, sh, err := s.resolveActiveRoute(ctx, routeDayID)
	if err != nil {
		return nil, err
	}
	prog, err := postgres.NewProgressRepo(s.db).Operator(ctx, rd.ShiftID, operatorID, rd.RouteNorm)
	if err == sql.ErrNoRows {
		return nil, ErrNoEnter
	}
	if err != nil {
		return nil, err
	}
	if prog.CutoffLoteID == nil {
		return nil, ErrNothingToPrint
	}

	lines, err := postgres.NewPrintLineRepo(s.db).OperatorInitial(
		ctx, rd.ShiftID, rd.RouteNorm, operatorID, *prog.CutoffLoteID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNothingToPrint
	}

	return s.emit(ctx, emitSpec{
		rd:         rd,
		shift:      sh,
		kind:       domain.PrintOperatorInitial,
		template:   TemplateThermal,
		operatorID: &operatorID,
		actorID:    actorID,
		lines:      lines,
		cutoff:     prog.CutoffLoteID,
		to:         prog.CutoffLoteID,
		advance:    advanceOperator,
	})
}

// PrintNew emits the operator's lines from lotes that landed after their
// last print. Requires the initial print first when a cutoff exists; an
// operator who entered an empty route starts directly with new work.
func (s *Service) PrintNew(ctx context.Context, routeDayID, operatorID, actorID string) (*domain.PrintJob, error) {
	rd, sh, err := s.resolveActiveRoute(ctx, routeDayID)
	if err != nil {
		return nil, err
	}
	prog, err := postgres.NewProgressRepo(s.db).Operator(ctx, rd.ShiftID, operatorID, rd.RouteNorm)
	if err == sql.ErrNoRows {
		return nil, ErrNoEnter
	}
	if err != nil {
		return nil, err
	}
	if prog.CutoffLoteID != nil && prog.LastPrintedLoteID == nil {
		return nil, ErrNoInitial
	}

	lines, err := postgres.NewPrintLineRepo(s.db).OperatorNew(
		ctx, rd.ShiftID, rd.RouteNorm, operatorID, prog.LastPrintedLoteID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNothingToPrint
	}
	to := lines[len(lines)-1].LoteID

	return s.emit(ctx, emitSpec{
		rd:         rd,
		shift:      sh,
		kind:       domain.PrintOperatorNew,
		template:   TemplateThermal,
		operatorID: &operatorID,
		actorID:    actorID,
		lines:      lines,
		from:       prog.LastPrintedLoteID,
		to:         &to,
		advance:    advanceOperator,
	})
}

// CollectorPrintNew emits the collector sheet: every line of the route, any
// operator, from lotes after the route's last collection print.
func (s *Service) CollectorPrintNew(ctx context.Context, routeDayID, actorID string) (*domain.PrintJob, error) {
	rd, sh, err := s.resolveActiveRoute(ctx, routeDayID)
	if err != nil {
		return nil, err
	}
	prog, err := postgres.NewProgressRepo(s.db).Collector(ctx, rd.ShiftID, rd.RouteNorm)
	if err != nil {
		return nil, err
	}

	lines, err := postgres.NewPrintLineRepo(s.db).CollectorNew(
		ctx, rd.ShiftID, rd.RouteNorm, prog.LastClosedLoteID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNothingToPrint
	}
	to := lines[len(lines)-1].LoteID

	return s.emit(ctx, emitSpec{
		rd:       rd,
		shift:    sh,
		kind:     domain.PrintCollectorNew,
		template: TemplateSheet,
		actorID:  actorID,
		lines:    lines,
		from:     prog.LastClosedLoteID,
		to:       &to,
		advance:  advanceCollector,
	})
}

// Reprint re-emits the exact line set of a previous job. Print counts go up;
// no cursor moves. Works on closed shifts too, for triage.
func (s *Service) Reprint(ctx context.Context, jobID, actorID string) (*domain.PrintJob, error) {
	jobs := postgres.NewPrintJobRepo(s.db)
	src, err := jobs.Get(ctx, jobID)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if src.ShiftID == nil {
		return nil, ErrNothingToPrint
	}

	ids, err := jobs.ItemLineIDs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNothingToPrint
	}
	lines, err := postgres.NewPrintLineRepo(s.db).ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	rd, err := postgres.NewRouteRepo(s.db).FindOrCreate(ctx, *src.ShiftID, src.RouteNorm)
	if err != nil {
		return nil, err
	}
	sh, err := postgres.NewShiftRepo(s.db).Get(ctx, rd.ShiftID)
	if err != nil {
		return nil, err
	}

	template := TemplateThermal
	if src.OperatorID == nil {
		template = TemplateSheet
	}
	return s.emit(ctx, emitSpec{
		rd:          rd,
		shift:       sh,
		kind:        domain.PrintReprint,
		template:    template,
		operatorID:  src.OperatorID,
		actorID:     actorID,
		lines:       lines,
		cutoff:      src.CutoffLoteID,
		from:        src.FromLoteID,
		to:          src.ToLoteID,
		sourceJobID: &src.ID,
		advance:     advanceNone,
	})
}

// Job returns one print job.
func (s *Service) Job(ctx context.Context, jobID string) (*domain.PrintJob, error) {
	job, err := postgres.NewPrintJobRepo(s.db).Get(ctx, jobID)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Jobs returns a shift's print jobs, newest first.
func (s *Service) Jobs(ctx context.Context, shiftID string, limit int) ([]domain.PrintJob, error) {
	return postgres.NewPrintJobRepo(s.db).ListByShift(ctx, shiftID, limit)
}

// JobDocument streams a job's stored document and reports its content type.
func (s *Service) JobDocument(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	job, err := s.Job(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.PDFRef == nil {
		return nil, "", ErrNoDocument
	}
	rc, err := s.store.Get(ctx, *job.PDFRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrNoDocument
	}
	if err != nil {
		return nil, "", err
	}
	ct := "text/html; charset=utf-8"
	if strings.HasSuffix(*job.PDFRef, ".pdf") {
		ct = "application/pdf"
	}
	return rc, ct, nil
}

type cursorAdvance int

const (
	advanceNone cursorAdvance = iota
	advanceOperator
	advanceCollector
)

type emitSpec struct {
	rd          *domain.RouteDay
	shift       *domain.Shift
	kind        domain.PrintJobKind
	template    string
	operatorID  *string
	actorID     string
	lines       []postgres.PrintLine
	cutoff      *string
	from        *string
	to          *string
	sourceJobID *string
	advance     cursorAdvance
}

// emit renders and stores the document, then records the job, stamps the
// lines, advances the cursor, and recomputes the route state.
func (s *Service) emit(ctx context.Context, spec emitSpec) (*domain.PrintJob, error) {
	now := time.Now().UTC()
	job := &domain.PrintJob{
		ID:           uuid.New().String(),
		ShiftID:      &spec.rd.ShiftID,
		RouteNorm:    spec.rd.RouteNorm,
		Kind:         spec.kind,
		Status:       domain.PrintJobPDFReady,
		OperatorID:   spec.operatorID,
		LinesCount:   len(spec.lines),
		CutoffLoteID: spec.cutoff,
		FromLoteID:   spec.from,
		ToLoteID:     spec.to,
		SourceJobID:  spec.sourceJobID,
	}
	if spec.actorID != "" {
		job.ActorUserID = &spec.actorID
	}

	html, err := s.templates.Render(spec.template, s.bindings(ctx, spec, job.ID, now))
	if err != nil {
		return nil, s.failJob(ctx, job, fmt.Errorf("render comanda: %w", err))
	}
	data, ext, err := s.renderer.Render(ctx, []byte(html))
	if err != nil {
		return nil, s.failJob(ctx, job, fmt.Errorf("convert comanda: %w", err))
	}

	key := fmt.Sprintf("jobs/%s/%s.%s", now.Format("2006/01/02"), job.ID, ext)
	if err := s.store.Put(ctx, key, data); err != nil {
		return nil, s.failJob(ctx, job, fmt.Errorf("store comanda: %w", err))
	}
	job.PDFRef = &key

	lineIDs := make([]string, len(spec.lines))
	for i, l := range spec.lines {
		lineIDs[i] = l.LineID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin print job: %w", err)
	}
	defer tx.Rollback()

	jobs := postgres.NewPrintJobRepo(tx)
	if err := jobs.Insert(ctx, job); err != nil {
		return nil, err
	}
	if err := jobs.InsertItems(ctx, job.ID, lineIDs); err != nil {
		return nil, err
	}
	if err := postgres.NewPrintLineRepo(tx).Stamp(ctx, lineIDs, now); err != nil {
		return nil, err
	}

	progress := postgres.NewProgressRepo(tx)
	switch spec.advance {
	case advanceOperator:
		if err := progress.AdvanceOperator(ctx, spec.rd.ShiftID, *spec.operatorID, spec.rd.RouteNorm, *spec.to, now); err != nil {
			return nil, err
		}
	case advanceCollector:
		if err := progress.AdvanceCollector(ctx, spec.rd.ShiftID, spec.rd.RouteNorm, *spec.to, now); err != nil {
			return nil, err
		}
	}

	payload := map[string]interface{}{
		"kind":  string(spec.kind),
		"route": spec.rd.RouteNorm,
		"lines": len(spec.lines),
	}
	if spec.operatorID != nil {
		payload["operator_id"] = *spec.operatorID
	}
	ev := events.New(domain.EventPrintEmitted, domain.EntityPrintJob, job.ID, payload)
	ev = events.WithActor(ev, spec.actorID)
	if err := postgres.NewEventRepo(tx).Append(ctx, &ev); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit print job: %w", err)
	}

	s.bus.Broadcast(ev)
	if err := s.routes.Recompute(ctx, spec.rd.ShiftID, spec.rd.RouteNorm); err != nil {
		log.Printf("[Printing] route recompute %s: %v", spec.rd.RouteNorm, err)
	}
	return job, nil
}

// failJob records a FAILED job carrying the cause. Lines stay unstamped and
// route state untouched, so the work remains printable after the problem is
// fixed.
func (s *Service) failJob(ctx context.Context, job *domain.PrintJob, cause error) error {
	job.Status = domain.PrintJobFailed
	job.PDFRef = nil
	msg := cause.Error()
	job.ErrorText = &msg
	if err := postgres.NewPrintJobRepo(s.db).Insert(ctx, job); err != nil {
		log.Printf("[Printing] record failed job %s: %v", job.ID, err)
	}
	return cause
}

// bindings builds the template context from the selected lines, grouped by
// client in window order.
func (s *Service) bindings(ctx context.Context, spec emitSpec, jobID string, now time.Time) map[string]interface{} {
	users := postgres.NewUserRepo(s.db)
	names := map[string]string{}
	operatorName := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		n := users.Name(ctx, id)
		names[id] = n
		return n
	}

	var clients []map[string]interface{}
	currentOrder := ""
	for _, l := range spec.lines {
		if l.ClientOrderID != currentOrder {
			clients = append(clients, map[string]interface{}{
				"name":         l.ClientName,
				"observations": l.Observations,
				"lines":        []map[string]interface{}{},
			})
			currentOrder = l.ClientOrderID
		}
		var price interface{}
		if l.Price != nil {
			price = *l.Price
		}
		op := ""
		if l.OperatorID != nil {
			op = operatorName(*l.OperatorID)
		}
		cur := clients[len(clients)-1]
		cur["lines"] = append(cur["lines"].([]map[string]interface{}), map[string]interface{}{
			"qty":      l.Quantity,
			"unit":     l.UnitRaw,
			"product":  l.ProductRaw,
			"price":    price,
			"currency": l.Currency,
			"operator": op,
		})
	}

	operator := ""
	if spec.operatorID != nil {
		operator = operatorName(*spec.operatorID)
	}
	return map[string]interface{}{
		"kind":        kindLabel(spec.kind),
		"route":       spec.rd.RouteNorm,
		"shift_date":  spec.shift.Date.Format("02/01/2006"),
		"shift_slot":  spec.shift.Slot,
		"operator":    operator,
		"emitted_at":  now.Format("15:04"),
		"job_id":      shortID(jobID),
		"clients":     clients,
		"total_lines": len(spec.lines),
	}
}

func kindLabel(kind domain.PrintJobKind) string {
	switch kind {
	case domain.PrintOperatorInitial:
		return "INICIAL"
	case domain.PrintOperatorNew:
		return "NUEVOS"
	case domain.PrintCollectorNew:
		return "RECOGIDA"
	case domain.PrintReprint:
		return "REIMPRESION"
	default:
		return string(kind)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
