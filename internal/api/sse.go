package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/repository/postgres"
)

const (
	sseTimeFormat     = "2006-01-02T15:04:05.000Z07:00"
	sseReplayLimit    = 100
	sseKeepaliveEvery = 30 * time.Second
)

// StreamEvents serves the wall-display stream: replay persisted events
// strictly later than the client's Last-Event-ID, then live-tail the bus.
// The SSE id line carries the event timestamp, so a reconnecting
// EventSource resumes exactly where it dropped.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, codeInternal, "streaming not supported")
		return
	}

	// Subscribe before reading the replay window: an event committed in
	// between shows up on the channel and is deduplicated below.
	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	// Native EventSource cannot set request headers, so a first connect may
	// pass ?since= instead; the browser-managed header takes over on
	// reconnect and wins when both are present.
	ref := r.Header.Get("Last-Event-ID")
	if ref == "" {
		ref = r.URL.Query().Get("since")
	}

	var replay []domain.Event
	if ref != "" {
		repo := postgres.NewEventRepo(h.db)
		ts, seq, err := resolveEventRef(r, repo, ref)
		if err != nil {
			httputil.BadRequest(w, "event reference must be an RFC3339 timestamp or an event id")
			return
		}
		replay, err = repo.ListSince(r.Context(), ts, seq, sseReplayLimit)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	seen := make(map[string]struct{}, len(replay))
	for _, ev := range replay {
		if writeEventFrame(w, ev) != nil {
			return
		}
		seen[ev.ID] = struct{}{}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if _, dup := seen[ev.ID]; dup {
				delete(seen, ev.ID)
				continue
			}
			if writeEventFrame(w, ev) != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// resolveEventRef turns a Last-Event-ID into a strict lower bound over
// (ts, seq). A bare timestamp excludes everything at or before that instant;
// an event id resolves to that event's position in the log.
func resolveEventRef(r *http.Request, repo *postgres.EventRepo, ref string) (time.Time, int64, error) {
	if ts, err := time.Parse(time.RFC3339, ref); err == nil {
		return ts, math.MaxInt64, nil
	}
	if _, err := uuid.Parse(ref); err == nil {
		return repo.ResolveRef(r.Context(), ref)
	}
	return time.Time{}, 0, fmt.Errorf("unrecognized event reference %q", ref)
}

func writeEventFrame(w io.Writer, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: evento\ndata: %s\n\n",
		ev.TS.UTC().Format(sseTimeFormat), payload)
	return err
}
