package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
)

// PrintJobRepo persists print jobs and their line membership.
type PrintJobRepo struct{ q Querier }

// NewPrintJobRepo creates a print job repository over the given Querier.
func NewPrintJobRepo(q Querier) *PrintJobRepo { return &PrintJobRepo{q: q} }

const printJobColumns = `id, shift_id, route_norm, kind, status, actor_user_id, operator_id,
	pdf_ref, error_text, lines_count, cutoff_lote_id, from_lote_id, to_lote_id, source_job_id, created_at`

func scanPrintJob(row interface{ Scan(...interface{}) error }, j *domain.PrintJob) error {
	return row.Scan(&j.ID, &j.ShiftID, &j.RouteNorm, &j.Kind, &j.Status, &j.ActorUserID, &j.OperatorID,
		&j.PDFRef, &j.ErrorText, &j.LinesCount, &j.CutoffLoteID, &j.FromLoteID, &j.ToLoteID, &j.SourceJobID, &j.CreatedAt)
}

// Insert stores one print job row.
func (r *PrintJobRepo) Insert(ctx context.Context, j *domain.PrintJob) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO print_jobs (id, shift_id, route_norm, kind, status, actor_user_id, operator_id,
			pdf_ref, error_text, lines_count, cutoff_lote_id, from_lote_id, to_lote_id, source_job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, j.ID, j.ShiftID, j.RouteNorm, j.Kind, j.Status, j.ActorUserID, j.OperatorID,
		j.PDFRef, j.ErrorText, j.LinesCount, j.CutoffLoteID, j.FromLoteID, j.ToLoteID, j.SourceJobID).
		Scan(&j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert print job: %w", err)
	}
	return nil
}

// InsertItems records which lines the job covered.
func (r *PrintJobRepo) InsertItems(ctx context.Context, jobID string, lineIDs []string) error {
	for _, lineID := range lineIDs {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO print_job_items (print_job_id, line_id) VALUES ($1, $2)
		`, jobID, lineID); err != nil {
			return fmt.Errorf("insert print job item: %w", err)
		}
	}
	return nil
}

// Get returns one print job by id, or sql.ErrNoRows.
func (r *PrintJobRepo) Get(ctx context.Context, id string) (*domain.PrintJob, error) {
	var j domain.PrintJob
	err := scanPrintJob(r.q.QueryRowContext(ctx,
		`SELECT `+printJobColumns+` FROM print_jobs WHERE id = $1`, id), &j)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get print job: %w", err)
	}
	return &j, nil
}

// ItemLineIDs returns the ids of the lines a job covered.
func (r *PrintJobRepo) ItemLineIDs(ctx context.Context, jobID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT line_id FROM print_job_items WHERE print_job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list print job items: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan print job item: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BlobRefsBefore returns the stored document keys of jobs older than the
// cutoff, so a retention sweep can drop the blobs before the rows.
func (r *PrintJobRepo) BlobRefsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT pdf_ref FROM print_jobs
		WHERE created_at < $1 AND pdf_ref IS NOT NULL AND pdf_ref <> ''
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list print job blobs before: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan print job blob ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// DeleteBefore removes jobs older than the cutoff; print_job_items rows go
// with them via the cascade.
func (r *PrintJobRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM print_jobs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete print jobs before: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListByShift returns the shift's jobs, newest first.
func (r *PrintJobRepo) ListByShift(ctx context.Context, shiftID string, limit int) ([]domain.PrintJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+printJobColumns+` FROM print_jobs WHERE shift_id = $1 ORDER BY created_at DESC LIMIT $2`,
		shiftID, limit)
	if err != nil {
		return nil, fmt.Errorf("list print jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.PrintJob
	for rows.Next() {
		var j domain.PrintJob
		if err := scanPrintJob(rows, &j); err != nil {
			return nil, fmt.Errorf("scan print job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
