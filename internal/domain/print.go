package domain

import (
	"time"
)

// PrintJobKind enumerates what a print covers.
type PrintJobKind string

const (
	// PrintOperatorInitial covers the operator's snapshot up to the cutoff
	// lote captured when they entered the route.
	PrintOperatorInitial PrintJobKind = "OPERATOR_INITIAL"
	// PrintOperatorNew covers the operator's lines from lotes newer than
	// their last printed lote.
	PrintOperatorNew PrintJobKind = "OPERATOR_NEW"
	// PrintCollectorNew covers every line, any operator, from lotes newer
	// than the route's last closed lote.
	PrintCollectorNew PrintJobKind = "COLLECTOR_NEW"
	// PrintReprint re-emits the line set of a previous job.
	PrintReprint PrintJobKind = "REPRINT"
)

// PrintJobStatus enumerates the delivery lifecycle of a print job.
type PrintJobStatus string

const (
	PrintJobCreated  PrintJobStatus = "CREATED"
	PrintJobPDFReady PrintJobStatus = "PDF_READY"
	PrintJobSent     PrintJobStatus = "SENT"
	PrintJobFailed   PrintJobStatus = "FAILED"
)

// PrintJob records one emission of a printable document, the lines it
// covered, and the cursor window it consumed.
type PrintJob struct {
	ID           string         `json:"id" db:"id"`
	ShiftID      *string        `json:"shift_id" db:"shift_id"`
	RouteNorm    string         `json:"route_norm" db:"route_norm"`
	Kind         PrintJobKind   `json:"kind" db:"kind"`
	Status       PrintJobStatus `json:"status" db:"status"`
	ActorUserID  *string        `json:"actor_user_id" db:"actor_user_id"`
	OperatorID   *string        `json:"operator_id" db:"operator_id"`
	PDFRef       *string        `json:"pdf_ref" db:"pdf_ref"`
	ErrorText    *string        `json:"error_text" db:"error_text"`
	LinesCount   int            `json:"lines_count" db:"lines_count"`
	CutoffLoteID *string        `json:"cutoff_lote_id" db:"cutoff_lote_id"`
	FromLoteID   *string        `json:"from_lote_id" db:"from_lote_id"`
	ToLoteID     *string        `json:"to_lote_id" db:"to_lote_id"`
	SourceJobID  *string        `json:"source_job_id" db:"source_job_id"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// OperatorRouteProgress tracks what one operator already printed on one route
// within one shift. The cutoff is frozen at first enter; the last printed
// lote advances with every successful print.
type OperatorRouteProgress struct {
	ShiftID           string     `json:"shift_id" db:"shift_id"`
	OperatorID        string     `json:"operator_id" db:"operator_id"`
	RouteNorm         string     `json:"route_norm" db:"route_norm"`
	EnteredAt         time.Time  `json:"entered_at" db:"entered_at"`
	CutoffLoteID      *string    `json:"cutoff_lote_id" db:"cutoff_lote_id"`
	LastPrintedLoteID *string    `json:"last_printed_lote_id" db:"last_printed_lote_id"`
	LastPrintedAt     *time.Time `json:"last_printed_at" db:"last_printed_at"`
}

// CollectorRouteProgress tracks the collection cursor of one route within one
// shift: everything up to last_closed_lote has been handed to the collector.
type CollectorRouteProgress struct {
	ShiftID          string     `json:"shift_id" db:"shift_id"`
	RouteNorm        string     `json:"route_norm" db:"route_norm"`
	LastClosedLoteID *string    `json:"last_closed_lote_id" db:"last_closed_lote_id"`
	LastClosedAt     *time.Time `json:"last_closed_at" db:"last_closed_at"`
}
