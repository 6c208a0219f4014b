package domain

import (
	"time"
)

// ImapCursor is the single-row ingest position for one mailbox. last_uid only
// moves forward within one uidvalidity generation; a generation change resets
// it to zero.
type ImapCursor struct {
	Mailbox     string     `json:"mailbox" db:"mailbox"`
	LastUID     int64      `json:"last_uid" db:"last_uid"`
	UIDValidity *int64     `json:"uidvalidity" db:"uidvalidity"`
	LastPollAt  *time.Time `json:"last_poll_at" db:"last_poll_at"`
}
