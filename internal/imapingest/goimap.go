package imapingest

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/delsur/comandero/internal/config"
)

// GoImapClient is the production Client over IMAP4rev1.
type GoImapClient struct {
	cfg      config.IMAPConfig
	conn     *client.Client
	selected *imap.MailboxStatus
}

// NewGoImapClient creates an unconnected client for the configured mailbox.
func NewGoImapClient(cfg config.IMAPConfig) *GoImapClient {
	return &GoImapClient{cfg: cfg}
}

// Connect dials and authenticates. TLS when configured secure, plain
// otherwise (dev mailservers).
func (g *GoImapClient) Connect(ctx context.Context) error {
	var (
		c   *client.Client
		err error
	)
	if g.cfg.Secure {
		c, err = client.DialTLS(g.cfg.Addr(), nil)
	} else {
		c, err = client.Dial(g.cfg.Addr())
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", g.cfg.Addr(), err)
	}
	if err := c.Login(g.cfg.User, g.cfg.Password); err != nil {
		c.Logout()
		return fmt.Errorf("login %s: %w", g.cfg.User, err)
	}
	g.conn = c
	return nil
}

// Select opens the folder read-only and returns its UIDVALIDITY.
func (g *GoImapClient) Select(ctx context.Context, folder string) (int64, error) {
	if g.conn == nil {
		return 0, fmt.Errorf("not connected")
	}
	status, err := g.conn.Select(folder, true)
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", folder, err)
	}
	g.selected = status
	return int64(status.UidValidity), nil
}

// FetchSince fetches envelope, internal date, and raw source of every message
// with UID above lastUID.
func (g *GoImapClient) FetchSince(ctx context.Context, lastUID int64) ([]Message, error) {
	if g.conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	if g.selected != nil && g.selected.Messages == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(uint32(lastUID+1), 0)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, 32)
	done := make(chan error, 1)
	go func() { done <- g.conn.UidFetch(seqset, items, ch) }()

	var out []Message
	for msg := range ch {
		// N:* resolves to the last message when nothing is newer than N;
		// the worker must never see that one again.
		if int64(msg.Uid) <= lastUID {
			continue
		}
		m := Message{UID: int64(msg.Uid), InternalDate: msg.InternalDate}
		if msg.Envelope != nil {
			m.Subject = msg.Envelope.Subject
		}
		if body := msg.GetBody(section); body != nil {
			// A failed read leaves Raw nil; the worker parks that
			// message as an unreadable lote instead of stalling.
			if raw, err := io.ReadAll(body); err == nil {
				m.Raw = raw
			}
		}
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// Logout closes the connection. Safe on an already-closed client.
func (g *GoImapClient) Logout() error {
	if g.conn == nil {
		return nil
	}
	err := g.conn.Logout()
	g.conn = nil
	g.selected = nil
	return err
}
