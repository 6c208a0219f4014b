package imapingest

import (
	"context"
	"time"
)

// Message is one fetched mail, reduced to what a lote needs. Raw is the full
// RFC 822 source; a nil Raw means the source could not be read.
type Message struct {
	UID          int64
	Subject      string
	InternalDate time.Time
	Raw          []byte
}

// Client is the mailbox transport. The worker treats it as a state machine:
// Connect, Select, FetchSince repeatedly, Logout on any error or on stop.
// Implementations must tolerate Connect/Logout in any order.
type Client interface {
	Connect(ctx context.Context) error
	// Select opens the folder and returns its current UIDVALIDITY.
	Select(ctx context.Context, folder string) (int64, error)
	// FetchSince returns messages with UID strictly greater than lastUID,
	// ascending.
	FetchSince(ctx context.Context, lastUID int64) ([]Message, error)
	Logout() error
}
