package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/delsur/comandero/internal/domain"
)

// UserRepo reads warehouse workers. Accounts are managed elsewhere; this
// side only needs names for documents and role checks.
type UserRepo struct{ q Querier }

// NewUserRepo creates a user repository over the given Querier.
func NewUserRepo(q Querier) *UserRepo { return &UserRepo{q: q} }

// Get returns one user by id, or sql.ErrNoRows.
func (r *UserRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, role, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// List returns every user ordered by name.
func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, role, created_at FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Name returns the display name for a user id, or the id itself when the
// user row is gone.
func (r *UserRepo) Name(ctx context.Context, id string) string {
	var name string
	err := r.q.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, id).Scan(&name)
	if err != nil {
		return id
	}
	return name
}
