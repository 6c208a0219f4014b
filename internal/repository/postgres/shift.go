package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/service/shift"
)

// ShiftRepo persists shifts and their per-shift configuration. It holds the
// pool directly because qualification replacement needs its own transaction.
type ShiftRepo struct {
	db *sql.DB
}

// NewShiftRepo creates a shift repository.
func NewShiftRepo(db *sql.DB) *ShiftRepo {
	return &ShiftRepo{db: db}
}

const shiftColumns = `id, shift_date, slot, state, started_at, scheduled_end_at, ended_at, COALESCE(ended_by, ''), created_at`

func scanShift(row interface{ Scan(...interface{}) error }, s *domain.Shift) error {
	return row.Scan(&s.ID, &s.Date, &s.Slot, &s.State, &s.StartedAt,
		&s.ScheduledEndAt, &s.EndedAt, &s.EndedBy, &s.CreatedAt)
}

// Active returns the single ACTIVE shift.
func (r *ShiftRepo) Active(ctx context.Context) (*domain.Shift, error) {
	var s domain.Shift
	err := scanShift(r.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE state = 'ACTIVE'`), &s)
	if err == sql.ErrNoRows {
		return nil, shift.ErrNoActiveShift
	}
	if err != nil {
		return nil, fmt.Errorf("get active shift: %w", err)
	}
	return &s, nil
}

// Get returns a shift by id.
func (r *ShiftRepo) Get(ctx context.Context, id string) (*domain.Shift, error) {
	var s domain.Shift
	err := scanShift(r.db.QueryRowContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id), &s)
	if err == sql.ErrNoRows {
		return nil, shift.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return &s, nil
}

// ActiveScheduleBySlot returns the active schedule row for the slot.
func (r *ShiftRepo) ActiveScheduleBySlot(ctx context.Context, slot string) (*domain.ShiftSchedule, error) {
	var sc domain.ShiftSchedule
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slot, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), active
		FROM shift_schedules
		WHERE slot = $1 AND active
	`, slot).Scan(&sc.ID, &sc.Slot, &sc.StartTime, &sc.EndTime, &sc.Active)
	if err == sql.ErrNoRows {
		return nil, shift.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &sc, nil
}

// Create inserts a new ACTIVE shift. The partial unique index on state maps
// to ErrShiftAlreadyActive, the (date, slot) key to ErrDuplicateShift.
func (r *ShiftRepo) Create(ctx context.Context, s *domain.Shift) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO shifts (id, shift_date, slot, state, started_at, scheduled_end_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, s.ID, s.Date, s.Slot, s.State, s.StartedAt, s.ScheduledEndAt).Scan(&s.CreatedAt)
	if uniqueViolation(err, "shifts_single_active") {
		return shift.ErrShiftAlreadyActive
	}
	if uniqueViolation(err, "") {
		return shift.ErrDuplicateShift
	}
	if err != nil {
		return fmt.Errorf("create shift: %w", err)
	}
	return nil
}

// Close transitions an ACTIVE shift to CLOSED.
func (r *ShiftRepo) Close(ctx context.Context, id string, endedAt time.Time, endedBy string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE shifts SET state = 'CLOSED', ended_at = $2, ended_by = $3
		WHERE id = $1 AND state = 'ACTIVE'
	`, id, endedAt, endedBy)
	if err != nil {
		return fmt.Errorf("close shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close shift rows: %w", err)
	}
	if n == 0 {
		return shift.ErrNotFound
	}
	return nil
}

// DueForAutoClose returns ACTIVE shifts whose scheduled end has elapsed.
func (r *ShiftRepo) DueForAutoClose(ctx context.Context, now time.Time) ([]domain.Shift, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+shiftColumns+` FROM shifts WHERE state = 'ACTIVE' AND scheduled_end_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list due shifts: %w", err)
	}
	defer rows.Close()

	var out []domain.Shift
	for rows.Next() {
		var s domain.Shift
		if err := scanShift(rows, &s); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Qualifications returns every qualification row of the shift.
func (r *ShiftRepo) Qualifications(ctx context.Context, shiftID string) ([]domain.Qualification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT shift_id, user_id, functional_code, enabled
		FROM shift_qualifications
		WHERE shift_id = $1
		ORDER BY functional_code, user_id
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("list qualifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Qualification
	for rows.Next() {
		var q domain.Qualification
		if err := rows.Scan(&q.ShiftID, &q.UserID, &q.FunctionalCode, &q.Enabled); err != nil {
			return nil, fmt.Errorf("scan qualification: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ReplaceQualifications swaps the shift's qualification set in one transaction.
func (r *ShiftRepo) ReplaceQualifications(ctx context.Context, shiftID string, rows []domain.Qualification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace qualifications: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM shift_qualifications WHERE shift_id = $1`, shiftID); err != nil {
		return fmt.Errorf("clear qualifications: %w", err)
	}
	for _, q := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shift_qualifications (shift_id, user_id, functional_code, enabled)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (shift_id, user_id, functional_code) DO UPDATE SET enabled = EXCLUDED.enabled
		`, shiftID, q.UserID, q.FunctionalCode, q.Enabled); err != nil {
			return fmt.Errorf("insert qualification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit qualifications: %w", err)
	}
	return nil
}

// Collectors returns the shift's route to collector bindings.
func (r *ShiftRepo) Collectors(ctx context.Context, shiftID string) ([]domain.RouteCollector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT shift_id, route_norm, user_id
		FROM shift_route_collectors
		WHERE shift_id = $1
		ORDER BY route_norm
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("list collectors: %w", err)
	}
	defer rows.Close()

	var out []domain.RouteCollector
	for rows.Next() {
		var c domain.RouteCollector
		if err := rows.Scan(&c.ShiftID, &c.RouteNorm, &c.UserID); err != nil {
			return nil, fmt.Errorf("scan collector: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCollector upserts one route to collector binding.
func (r *ShiftRepo) SetCollector(ctx context.Context, shiftID, routeNorm string, userID *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shift_route_collectors (shift_id, route_norm, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (shift_id, route_norm) DO UPDATE SET user_id = EXCLUDED.user_id
	`, shiftID, routeNorm, userID)
	if err != nil {
		return fmt.Errorf("set collector: %w", err)
	}
	return nil
}

// MostRecentClosed returns the CLOSED shift with the latest ended_at, or
// shift.ErrNotFound when no shift has ever closed. Carryover uses it to find
// the source shift.
func (r *ShiftRepo) MostRecentClosed(ctx context.Context, before string) (*domain.Shift, error) {
	var s domain.Shift
	err := scanShift(r.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts
		WHERE state = 'CLOSED' AND id <> $1
		ORDER BY ended_at DESC
		LIMIT 1
	`, before), &s)
	if err == sql.ErrNoRows {
		return nil, shift.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last closed shift: %w", err)
	}
	return &s, nil
}
