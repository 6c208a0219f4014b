package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// AssignRepo persists assignment state: the qualification pool, sticky client
// affinities, and the per-code round-robin cursor. It is meant to run inside
// the lote-processing transaction; Cursor locks the cursor row so concurrent
// processors serialize per (shift, code).
type AssignRepo struct{ q Querier }

// NewAssignRepo creates an assignment repository over the given Querier.
func NewAssignRepo(q Querier) *AssignRepo { return &AssignRepo{q: q} }

// Pool returns the operator ids enabled for the code, ordered by id.
func (r *AssignRepo) Pool(ctx context.Context, shiftID string, code int) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT user_id FROM shift_qualifications
		WHERE shift_id = $1 AND functional_code = $2 AND enabled
		ORDER BY user_id
	`, shiftID, code)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Affinity returns the sticky operator for the key, or "" when unbound.
func (r *AssignRepo) Affinity(ctx context.Context, shiftID, key string, code int) (string, error) {
	var op string
	err := r.q.QueryRowContext(ctx, `
		SELECT operator_id FROM owner_affinities
		WHERE shift_id = $1 AND affinity_key = $2 AND functional_code = $3
	`, shiftID, key, code).Scan(&op)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load affinity: %w", err)
	}
	return op, nil
}

// SaveAffinity binds (or re-binds) the key to the operator.
func (r *AssignRepo) SaveAffinity(ctx context.Context, shiftID, key string, code int, operatorID string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO owner_affinities (shift_id, affinity_key, functional_code, operator_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shift_id, affinity_key, functional_code)
		DO UPDATE SET operator_id = EXCLUDED.operator_id, updated_at = now()
	`, shiftID, key, code, operatorID)
	if err != nil {
		return fmt.Errorf("save affinity: %w", err)
	}
	return nil
}

// Cursor returns the last round-robin pick for the code. The cursor row is
// created on first use and locked until the enclosing transaction ends.
func (r *AssignRepo) Cursor(ctx context.Context, shiftID string, code int) (string, error) {
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO round_robin_cursors (shift_id, functional_code)
		VALUES ($1, $2)
		ON CONFLICT (shift_id, functional_code) DO NOTHING
	`, shiftID, code); err != nil {
		return "", fmt.Errorf("seed cursor: %w", err)
	}

	var last sql.NullString
	err := r.q.QueryRowContext(ctx, `
		SELECT last_operator_id FROM round_robin_cursors
		WHERE shift_id = $1 AND functional_code = $2
		FOR UPDATE
	`, shiftID, code).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	return last.String, nil
}

// SaveCursor records the new last pick.
func (r *AssignRepo) SaveCursor(ctx context.Context, shiftID string, code int, operatorID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE round_robin_cursors
		SET last_operator_id = $3, updated_at = now()
		WHERE shift_id = $1 AND functional_code = $2
	`, shiftID, code, operatorID)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
