package domain

import (
	"time"
)

// EventType names a recognized event. The set is open: consumers must
// tolerate unknown types.
type EventType string

// Shift lifecycle.
const (
	EventShiftStarted    EventType = "SHIFT_STARTED"
	EventShiftClosed     EventType = "SHIFT_CLOSED"
	EventShiftClosedAuto EventType = "SHIFT_CLOSED_AUTO"
)

// Ingest.
const (
	EventNewEmail         EventType = "NEW_EMAIL"
	EventEmailReadError   EventType = "EMAIL_READ_ERROR"
	EventDuplicateIgnored EventType = "DUPLICATE_IGNORED"
)

// Parse and match.
const (
	EventRouteParseError   EventType = "ROUTE_PARSE_ERROR"
	EventBodyParseError    EventType = "BODY_PARSE_ERROR"
	EventProductNotFound   EventType = "PRODUCT_NOT_FOUND"
	EventProductFuzzyMatch EventType = "PRODUCT_FUZZY_MATCH"
	EventEmptyOperatorPool EventType = "EMPTY_OPERATOR_POOL"
)

// Lote orchestration.
const (
	EventLoteProcessed    EventType = "LOTE_PROCESSED"
	EventLoteProcessError EventType = "LOTE_PROCESS_ERROR"
	EventLoteCarriedOver  EventType = "LOTE_CARRIED_OVER"
)

// Route state.
const (
	EventRouteAlertRed      EventType = "ROUTE_ALERT_RED"
	EventRouteCompleteGreen EventType = "ROUTE_COMPLETE_GREEN"
	EventRouteCollected     EventType = "ROUTE_COLLECTED"
	EventRouteReactivated   EventType = "ROUTE_REACTIVATED"
)

// Printing.
const (
	EventOperatorEnteredRoute EventType = "OPERATOR_ENTERED_ROUTE"
	EventPrintEmitted         EventType = "PRINT_EMITTED"
)

// Catalogs.
const (
	EventProductsActivated EventType = "PRODUCTS_ACTIVATED"
	EventRoutesActivated   EventType = "ROUTES_ACTIVATED"
)

// Event is one append-only log row; the SSE stream replays and tails these.
// Payload is an opaque map whose schema is fixed per type. Seq is the append
// order of the log and never leaves the process boundary.
type Event struct {
	ID          string                 `json:"id" db:"id"`
	Seq         int64                  `json:"-" db:"seq"`
	TS          time.Time              `json:"ts" db:"ts"`
	Type        EventType              `json:"type" db:"type"`
	EntityType  string                 `json:"entity_type" db:"entity_type"`
	EntityID    string                 `json:"entity_id" db:"entity_id"`
	ActorUserID *string                `json:"actor_user_id,omitempty" db:"actor_user_id"`
	Payload     map[string]interface{} `json:"payload" db:"payload"`
}

// Entity types used in the event log.
const (
	EntityShift    = "shift"
	EntityLote     = "lote"
	EntityRouteDay = "route_day"
	EntityPrintJob = "print_job"
	EntityCatalog  = "catalog"
	EntityMailbox  = "mailbox"
)
