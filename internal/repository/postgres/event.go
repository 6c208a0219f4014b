package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
)

// EventRepo appends to and reads from the append-only event log. Appends
// inside a transaction become visible to readers in commit order; ts is
// assigned by the database clock at append.
type EventRepo struct{ q Querier }

// NewEventRepo creates an event repository over the given Querier.
func NewEventRepo(q Querier) *EventRepo { return &EventRepo{q: q} }

// Append inserts one event row. It fills the event's ID when empty and
// writes back the log-assigned seq and ts.
func (r *EventRepo) Append(ctx context.Context, ev *domain.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Payload == nil {
		ev.Payload = map[string]interface{}{}
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	err = r.q.QueryRowContext(ctx, `
		INSERT INTO events (id, type, entity_type, entity_id, actor_user_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, ts
	`, ev.ID, ev.Type, ev.EntityType, ev.EntityID, ev.ActorUserID, payload).Scan(&ev.Seq, &ev.TS)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ResolveRef returns the (ts, seq) position of an event by id, for clients
// that send an event UUID as Last-Event-ID instead of a timestamp.
func (r *EventRepo) ResolveRef(ctx context.Context, id string) (time.Time, int64, error) {
	var ts time.Time
	var seq int64
	err := r.q.QueryRowContext(ctx, `SELECT ts, seq FROM events WHERE id = $1`, id).Scan(&ts, &seq)
	if err == sql.ErrNoRows {
		return time.Time{}, 0, sql.ErrNoRows
	}
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("resolve event ref: %w", err)
	}
	return ts, seq, nil
}

// ListSince returns up to limit events strictly after the (ts, seq) position,
// in append order. Callers replaying from a bare timestamp pass the maximum
// seq so the comparison degenerates to ts-strictly-greater.
func (r *EventRepo) ListSince(ctx context.Context, ts time.Time, seq int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, seq, ts, type, entity_type, entity_id, actor_user_id, payload
		FROM events
		WHERE (ts, seq) > ($1, $2)
		ORDER BY ts ASC, seq ASC
		LIMIT $3
	`, ts, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("list events since: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteBefore removes events older than the cutoff and reports how many
// rows went. Replay from timestamps inside the deleted range simply starts
// at the oldest surviving event.
func (r *EventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events before: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// EventFilter narrows the paged history listing. Zero values mean "any".
type EventFilter struct {
	Type       string
	EntityType string
	EntityID   string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// List returns a page of events (newest first) plus the total match count.
func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]domain.Event, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1
	add := func(cond string, val interface{}) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, val)
		idx++
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Since != nil {
		add("ts >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("ts <= $%d", *f.Until)
	}

	var total int64
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	q := `
		SELECT id, seq, ts, type, entity_type, entity_id, actor_user_id, payload
		FROM events` + where + fmt.Sprintf(" ORDER BY ts DESC, seq DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	evs, err := scanEvents(rows)
	return evs, total, err
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.TS, &ev.Type, &ev.EntityType, &ev.EntityID, &ev.ActorUserID, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				ev.Payload = map[string]interface{}{"_raw": string(payload)}
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
