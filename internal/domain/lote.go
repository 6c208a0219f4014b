package domain

import (
	"time"
)

// ParseStatus enumerates the processing outcome of a lote.
type ParseStatus string

const (
	// ParsePending marks a lote that is stored but not yet processed.
	ParsePending ParseStatus = "PENDING"
	// ParseOK marks a fully processed lote whose lines are dispatchable.
	ParseOK ParseStatus = "OK"
	// ParseErrorRoute marks a lote whose subject resolved to no active route.
	ParseErrorRoute ParseStatus = "ERROR_ROUTE"
	// ParseErrorParse marks a lote whose body could not be parsed, or whose
	// raw message could not be extracted at ingest.
	ParseErrorParse ParseStatus = "ERROR_PARSE"
)

// IsTerminalError reports whether the lote needs human triage before it can
// be dispatched.
func (s ParseStatus) IsTerminalError() bool {
	return s == ParseErrorRoute || s == ParseErrorParse
}

// Lote is one ingested order email (or a carried-over copy of one): the unit
// of processing, printing windows, and carryover.
type Lote struct {
	ID                     string      `json:"id" db:"id"`
	ShiftID                *string     `json:"shift_id" db:"shift_id"`
	ImapUIDValidity        *int64      `json:"imap_uidvalidity" db:"imap_uidvalidity"`
	ImapUID                *int64      `json:"imap_uid" db:"imap_uid"`
	ReceivedAt             time.Time   `json:"received_at" db:"received_at"`
	SubjectRaw             string      `json:"subject_raw" db:"subject_raw"`
	BodyRaw                string      `json:"body_raw,omitempty" db:"body_raw"`
	ParseStatus            ParseStatus `json:"parse_status" db:"parse_status"`
	ParseError             *string     `json:"parse_error" db:"parse_error"`
	RouteNorm              *string     `json:"route_norm" db:"route_norm"`
	RouteDayID             *string     `json:"route_day_id" db:"route_day_id"`
	ProductsCatalogVersion *int        `json:"products_catalog_version" db:"products_catalog_version"`
	RoutesCatalogVersion   *int        `json:"routes_catalog_version" db:"routes_catalog_version"`
	CarriedOver            bool        `json:"carried_over" db:"carried_over"`
	SourceLoteID           *string     `json:"source_lote_id" db:"source_lote_id"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
}

// ClientOrder groups the lines one client ordered within a lote. The affinity
// key (normalized client name) is what keeps repeat orders on the same
// operator.
type ClientOrder struct {
	ID           string    `json:"id" db:"id"`
	LoteID       string    `json:"lote_id" db:"lote_id"`
	Seq          int       `json:"seq" db:"seq"`
	NameRaw      string    `json:"name_raw" db:"name_raw"`
	AffinityKey  string    `json:"affinity_key" db:"affinity_key"`
	Observations string    `json:"observations" db:"observations"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// MatchMethod records how a product line was bound to the catalog.
type MatchMethod string

const (
	MatchExact   MatchMethod = "EXACT"
	MatchFuzzy   MatchMethod = "FUZZY"
	MatchNoMatch MatchMethod = "NO_MATCH"
)

// OrderLine is one product request within a client order: the unit of
// assignment and printing.
type OrderLine struct {
	ID             string       `json:"id" db:"id"`
	ClientOrderID  string       `json:"client_order_id" db:"client_order_id"`
	Seq            int          `json:"seq" db:"seq"`
	Quantity       float64      `json:"quantity" db:"quantity"`
	UnitRaw        string       `json:"unit_raw" db:"unit_raw"`
	ProductRaw     string       `json:"product_raw" db:"product_raw"`
	ProductNorm    string       `json:"product_norm" db:"product_norm"`
	Price          *float64     `json:"price" db:"price"`
	Currency       string       `json:"currency" db:"currency"`
	MatchMethod    *MatchMethod `json:"match_method" db:"match_method"`
	MatchScore     *float64     `json:"match_score" db:"match_score"`
	MatchedProduct *string      `json:"matched_product" db:"matched_product"`
	Family         int          `json:"family" db:"family"`
	FunctionalCode int          `json:"functional_code" db:"functional_code"`
	OperatorID     *string      `json:"operator_id" db:"operator_id"`
	AssignedAt     *time.Time   `json:"assigned_at" db:"assigned_at"`
	PrintedAt      *time.Time   `json:"printed_at" db:"printed_at"`
	PrintCount     int          `json:"print_count" db:"print_count"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// Printed reports whether the line already went out on some print job.
func (l *OrderLine) Printed() bool {
	return l.PrintedAt != nil
}
