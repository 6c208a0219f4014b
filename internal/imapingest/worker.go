// Package imapingest polls the order mailbox and materializes every new
// message as a lote. The (uidvalidity, uid) pair is the idempotency anchor:
// however many times a UID is fetched, exactly one lote row exists for it.
//
// The worker owns one connection and reconnects with exponential backoff.
// Message bodies that cannot be extracted land as ERROR_PARSE lotes so one
// bad email never stalls the mailbox.
package imapingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/delsur/comandero/internal/config"
	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/repository/postgres"
)

const maxBackoff = 60 * time.Second

// Processor drives a stored lote through parse, match, and assignment.
// Implemented by the lote service.
type Processor interface {
	Process(ctx context.Context, loteID string) error
}

// Worker is the single long-running ingest loop.
type Worker struct {
	db        *sql.DB
	bus       *events.Bus
	client    Client
	processor Processor

	mailbox      string
	folder       string
	pollInterval time.Duration

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	// pollMu serializes poll cycles: the ticker loop, the shift manager's
	// backlog poll, and the force-poll endpoint share one connection.
	pollMu    sync.Mutex
	connected bool
	lastError string
	backoff   time.Duration
}

// NewWorker creates the ingest worker. The cursor row is keyed by
// user/folder so credential changes start a fresh cursor.
func NewWorker(db *sql.DB, bus *events.Bus, client Client, processor Processor, cfg config.IMAPConfig) *Worker {
	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}
	interval := cfg.PollInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		db:           db,
		bus:          bus,
		client:       client,
		processor:    processor,
		mailbox:      cfg.User + "/" + folder,
		folder:       folder,
		pollInterval: interval,
		backoff:      time.Second,
	}
}

// Start begins the background poll loop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[ImapIngest] Starting for %s (interval=%s)", w.mailbox, w.pollInterval)
	w.wg.Add(1)
	go w.run()
}

// Stop cancels the loop, waits for an in-flight poll to finish, and closes
// the connection.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	log.Println("[ImapIngest] Stopping...")
	w.wg.Wait()
	w.disconnect()
	log.Println("[ImapIngest] Stopped")
}

// IsRunning reports whether the background loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.PollOnce(w.ctx); err != nil {
			if w.ctx.Err() != nil {
				return
			}
			delay := w.nextBackoff()
			log.Printf("[ImapIngest] poll failed: %v (retry in %s)", err, delay)
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs one synchronous poll cycle, connecting first if needed. The
// shift manager calls it right after opening a shift so the backlog lands
// without waiting for the next tick.
func (w *Worker) PollOnce(ctx context.Context) error {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	if err := w.ensureConnected(ctx); err != nil {
		w.noteError(err)
		return err
	}
	if err := w.poll(ctx); err != nil {
		w.noteError(err)
		w.disconnect()
		return err
	}
	w.noteError(nil)
	return nil
}

// poll is one cycle: skip the fetch while no shift is active, recover from
// uidvalidity changes, land each new message, then persist the cursor and
// hand the landed lotes to the processor.
func (w *Worker) poll(ctx context.Context) error {
	now := time.Now().UTC()
	cursors := postgres.NewImapCursorRepo(w.db)

	shiftID, err := w.activeShiftID(ctx)
	if err != nil {
		return err
	}
	if shiftID == "" {
		return cursors.TouchPoll(ctx, w.mailbox, now)
	}

	uidValidity, err := w.client.Select(ctx, w.folder)
	if err != nil {
		return err
	}

	cur, err := cursors.Get(ctx, w.mailbox)
	if err != nil {
		return err
	}
	if cur.UIDValidity != nil && *cur.UIDValidity != uidValidity {
		log.Printf("[ImapIngest] uidvalidity changed %d -> %d, resetting cursor", *cur.UIDValidity, uidValidity)
		cur.LastUID = 0
		cur.UIDValidity = nil
	}

	msgs, err := w.client.FetchSince(ctx, cur.LastUID)
	if err != nil {
		return err
	}

	var landed []string
	for _, m := range msgs {
		if m.UID <= cur.LastUID {
			continue
		}
		loteID, err := w.ingest(ctx, shiftID, uidValidity, m)
		if err != nil {
			return fmt.Errorf("ingest uid %d: %w", m.UID, err)
		}
		if loteID != "" {
			landed = append(landed, loteID)
		}
		cur.LastUID = m.UID
	}

	cur.Mailbox = w.mailbox
	cur.UIDValidity = &uidValidity
	cur.LastPollAt = &now
	if err := cursors.Save(ctx, cur); err != nil {
		return err
	}

	// Processing failures park the lote as triageable; the cursor already
	// moved, so they never block the mailbox.
	for _, id := range landed {
		if err := w.processor.Process(ctx, id); err != nil {
			log.Printf("[ImapIngest] process lote %s: %v", id, err)
		}
	}
	return nil
}

// ingest stores one message and its audit event in a single transaction.
// Returns the new lote id, or "" when the message was a duplicate or landed
// as an unreadable lote.
func (w *Worker) ingest(ctx context.Context, shiftID string, uidValidity int64, m Message) (string, error) {
	body, extractErr := extractBody(m.Raw)

	receivedAt := m.InternalDate
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	uid := m.UID
	l := &domain.Lote{
		ShiftID:         &shiftID,
		ImapUIDValidity: &uidValidity,
		ImapUID:         &uid,
		ReceivedAt:      receivedAt,
		SubjectRaw:      m.Subject,
		BodyRaw:         body,
		ParseStatus:     domain.ParsePending,
	}
	if extractErr != nil {
		msg := extractErr.Error()
		l.ParseStatus = domain.ParseErrorParse
		l.ParseError = &msg
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	inserted, err := postgres.NewLoteRepo(tx).Insert(ctx, l)
	if err != nil {
		return "", err
	}

	var ev domain.Event
	switch {
	case !inserted:
		ev = events.New(domain.EventDuplicateIgnored, domain.EntityMailbox, w.mailbox,
			map[string]interface{}{
				"uid":         m.UID,
				"uidvalidity": uidValidity,
				"subject":     m.Subject,
			})
	case extractErr != nil:
		ev = events.New(domain.EventEmailReadError, domain.EntityLote, l.ID,
			map[string]interface{}{
				"uid":    m.UID,
				"reason": extractErr.Error(),
			})
	default:
		ev = events.New(domain.EventNewEmail, domain.EntityLote, l.ID,
			map[string]interface{}{
				"uid":         m.UID,
				"uidvalidity": uidValidity,
				"subject":     m.Subject,
			})
	}
	if err := postgres.NewEventRepo(tx).Append(ctx, &ev); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit ingest: %w", err)
	}
	w.bus.Broadcast(ev)

	if !inserted || extractErr != nil {
		return "", nil
	}
	return l.ID, nil
}

func (w *Worker) activeShiftID(ctx context.Context) (string, error) {
	var id string
	err := w.db.QueryRowContext(ctx, `SELECT id FROM shifts WHERE state = 'ACTIVE'`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("active shift: %w", err)
	}
	return id, nil
}

func (w *Worker) ensureConnected(ctx context.Context) error {
	w.mu.RLock()
	connected := w.connected
	w.mu.RUnlock()
	if connected {
		return nil
	}
	if err := w.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	w.mu.Lock()
	w.connected = true
	w.backoff = time.Second
	w.mu.Unlock()
	log.Printf("[ImapIngest] connected to %s", w.mailbox)
	return nil
}

func (w *Worker) disconnect() {
	if err := w.client.Logout(); err != nil {
		log.Printf("[ImapIngest] logout: %v", err)
	}
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
}

func (w *Worker) noteError(err error) {
	w.mu.Lock()
	if err != nil {
		w.lastError = err.Error()
	} else {
		w.lastError = ""
	}
	w.mu.Unlock()
}

func (w *Worker) nextBackoff() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.backoff
	if d <= 0 {
		d = time.Second
	}
	w.backoff = d * 2
	if w.backoff > maxBackoff {
		w.backoff = maxBackoff
	}
	return d
}

// CursorStatus is the persisted mailbox position as shown by the status
// endpoint.
type CursorStatus struct {
	LastUID     int64  `json:"last_uid"`
	UIDValidity *int64 `json:"uidvalidity"`
}

// Status is the worker's debug snapshot.
type Status struct {
	Running    bool         `json:"running"`
	Connected  bool         `json:"connected"`
	LastError  string       `json:"last_error,omitempty"`
	LastPollAt *time.Time   `json:"last_poll_at,omitempty"`
	Cursor     CursorStatus `json:"cursor"`
}

// Status reports the loop state and the persisted cursor.
func (w *Worker) Status(ctx context.Context) Status {
	w.mu.RLock()
	st := Status{Running: w.running, Connected: w.connected, LastError: w.lastError}
	w.mu.RUnlock()

	cur, err := postgres.NewImapCursorRepo(w.db).Get(ctx, w.mailbox)
	if err == nil {
		st.LastPollAt = cur.LastPollAt
		st.Cursor = CursorStatus{LastUID: cur.LastUID, UIDValidity: cur.UIDValidity}
	}
	return st
}

// extractBody returns the message text after the RFC 822 header block: the
// bytes past the first blank line. No MIME decoding; the order senders mail
// plain text.
func extractBody(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("empty message source")
	}
	s := string(raw)
	if i := strings.Index(s, "\r\n\r\n"); i >= 0 {
		return s[i+4:], nil
	}
	if i := strings.Index(s, "\n\n"); i >= 0 {
		return s[i+2:], nil
	}
	return "", errors.New("no header separator in message source")
}
