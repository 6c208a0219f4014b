package api

import (
	"net/http"

	"github.com/delsur/comandero/internal/pkg/httputil"
)

// ImapStatus reports the ingest loop state and the persisted mailbox cursor.
func (h *Handlers) ImapStatus(w http.ResponseWriter, r *http.Request) {
	if h.imap == nil {
		httputil.Error(w, http.StatusServiceUnavailable, codeImapUnavailable, "imap ingest not configured")
		return
	}
	httputil.OK(w, h.imap.Status(r.Context()))
}

// ImapForcePoll runs one synchronous poll cycle, serialized with the
// background loop.
func (h *Handlers) ImapForcePoll(w http.ResponseWriter, r *http.Request) {
	if h.imap == nil {
		httputil.Error(w, http.StatusServiceUnavailable, codeImapUnavailable, "imap ingest not configured")
		return
	}
	if err := h.imap.PollOnce(r.Context()); err != nil {
		httputil.Error(w, http.StatusBadGateway, codeImapUnavailable, err.Error())
		return
	}
	httputil.OK(w, map[string]bool{"ok": true})
}
