package domain

import (
	"time"
)

// VisualState is what the wall display shows for a route.
type VisualState string

const (
	// VisualBlue: fresh route, nothing pending and nothing printed yet.
	VisualBlue VisualState = "BLUE"
	// VisualGreen: everything received so far has been printed.
	VisualGreen VisualState = "GREEN"
	// VisualRed: there is unprinted work pending on the route.
	VisualRed VisualState = "RED"
)

// LogicalState is the operational lifecycle of a route within a shift.
type LogicalState string

const (
	RouteActive    LogicalState = "ACTIVE"
	RouteCollected LogicalState = "COLLECTED"
)

// RouteDay is the per-shift materialization of a route: the thing whose color
// the warehouse watches. Created lazily by the first lote that names the
// route.
type RouteDay struct {
	ID                 string       `json:"id" db:"id"`
	ShiftID            string       `json:"shift_id" db:"shift_id"`
	RouteNorm          string       `json:"route_norm" db:"route_norm"`
	VisualState        VisualState  `json:"visual_state" db:"visual_state"`
	LogicalState       LogicalState `json:"logical_state" db:"logical_state"`
	ReactivationsCount int          `json:"reactivations_count" db:"reactivations_count"`
	LastEventAt        time.Time    `json:"last_event_at" db:"last_event_at"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
}

// NextVisualState derives the visual color from the pending work and the
// previous color. Zero pending work is always GREEN. Pending work is an alert
// (RED) only when it arrived after the route was complete or collected;
// otherwise the route is simply still in progress (BLUE).
func NextVisualState(prev VisualState, logical LogicalState, unprinted int) VisualState {
	if unprinted == 0 {
		return VisualGreen
	}
	if prev == VisualGreen || prev == VisualRed || logical == RouteCollected {
		return VisualRed
	}
	return VisualBlue
}

// RouteSummary is the wall-display row for one route: the RouteDay states
// plus the live counts behind them.
type RouteSummary struct {
	RouteDayID         string       `json:"route_id"`
	RouteNorm          string       `json:"route_name"`
	VisualState        VisualState  `json:"visual_state"`
	LogicalState       LogicalState `json:"logical_state"`
	ReactivationsCount int          `json:"reactivations_count"`
	Unprinted          int          `json:"unprinted"`
	TotalLines         int          `json:"total_lines"`
	TotalClients       int          `json:"total_clients"`
	LotesCount         int          `json:"lotes_count"`
	LastEventAt        time.Time    `json:"last_event_at"`
}
