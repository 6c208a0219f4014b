package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/delsur/comandero/internal/domain"
)

// ImapCursorRepo persists the per-mailbox ingest position.
type ImapCursorRepo struct{ q Querier }

// NewImapCursorRepo creates an imap cursor repository over the given Querier.
func NewImapCursorRepo(q Querier) *ImapCursorRepo { return &ImapCursorRepo{q: q} }

// Get returns the mailbox cursor. A mailbox never polled before yields the
// zero cursor (last_uid 0, no uidvalidity) without error.
func (r *ImapCursorRepo) Get(ctx context.Context, mailbox string) (*domain.ImapCursor, error) {
	var c domain.ImapCursor
	err := r.q.QueryRowContext(ctx, `
		SELECT mailbox, last_uid, uidvalidity, last_poll_at
		FROM imap_cursors WHERE mailbox = $1
	`, mailbox).Scan(&c.Mailbox, &c.LastUID, &c.UIDValidity, &c.LastPollAt)
	if err == sql.ErrNoRows {
		return &domain.ImapCursor{Mailbox: mailbox}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get imap cursor: %w", err)
	}
	return &c, nil
}

// Save upserts the mailbox cursor.
func (r *ImapCursorRepo) Save(ctx context.Context, c *domain.ImapCursor) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO imap_cursors (mailbox, last_uid, uidvalidity, last_poll_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mailbox) DO UPDATE
		SET last_uid = EXCLUDED.last_uid, uidvalidity = EXCLUDED.uidvalidity,
		    last_poll_at = EXCLUDED.last_poll_at
	`, c.Mailbox, c.LastUID, c.UIDValidity, c.LastPollAt)
	if err != nil {
		return fmt.Errorf("save imap cursor: %w", err)
	}
	return nil
}

// TouchPoll records a completed poll cycle without moving the cursor.
func (r *ImapCursorRepo) TouchPoll(ctx context.Context, mailbox string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO imap_cursors (mailbox, last_poll_at)
		VALUES ($1, $2)
		ON CONFLICT (mailbox) DO UPDATE SET last_poll_at = EXCLUDED.last_poll_at
	`, mailbox, at)
	if err != nil {
		return fmt.Errorf("touch imap cursor: %w", err)
	}
	return nil
}
