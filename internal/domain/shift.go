package domain

import (
	"time"
)

// ShiftState enumerates the lifecycle states of a work shift.
type ShiftState string

const (
	ShiftCreated ShiftState = "CREATED"
	ShiftActive  ShiftState = "ACTIVE"
	ShiftClosed  ShiftState = "CLOSED"
)

// Well-known schedule slots. Slots are defined by shift_schedules rows, so
// installations may add their own; these are the seeded defaults.
const (
	SlotMorning   = "MORNING"
	SlotAfternoon = "AFTERNOON"
	SlotNight     = "NIGHT"
)

// Shift is one activation of a schedule slot on a calendar date. At most one
// shift is ACTIVE at any time; everything the pipeline writes hangs off it.
type Shift struct {
	ID             string     `json:"id" db:"id"`
	Date           time.Time  `json:"date" db:"shift_date"`
	Slot           string     `json:"slot" db:"slot"`
	State          ShiftState `json:"state" db:"state"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	ScheduledEndAt time.Time  `json:"scheduled_end_at" db:"scheduled_end_at"`
	EndedAt        *time.Time `json:"ended_at" db:"ended_at"`
	EndedBy        string     `json:"ended_by,omitempty" db:"ended_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsActive reports whether the shift still accepts ingest and printing.
func (s *Shift) IsActive() bool {
	return s.State == ShiftActive
}

// ShiftSchedule is the template a shift is opened from: a named slot with a
// daily time window. end before or equal to start means the slot crosses
// midnight.
type ShiftSchedule struct {
	ID        string `json:"id" db:"id"`
	Slot      string `json:"slot" db:"slot"`
	StartTime string `json:"start_time" db:"start_time"`
	EndTime   string `json:"end_time" db:"end_time"`
	Active    bool   `json:"active" db:"active"`
}

// Qualification enables one operator for one functional code within one shift.
// The set of enabled qualifications for a code is the assignment pool.
type Qualification struct {
	ShiftID        string `json:"shift_id" db:"shift_id"`
	UserID         string `json:"user_id" db:"user_id"`
	FunctionalCode int    `json:"functional_code" db:"functional_code"`
	Enabled        bool   `json:"enabled" db:"enabled"`
}

// RouteCollector maps a route to the collector in charge of it for one shift.
type RouteCollector struct {
	ShiftID   string  `json:"shift_id" db:"shift_id"`
	RouteNorm string  `json:"route_norm" db:"route_norm"`
	UserID    *string `json:"user_id" db:"user_id"`
}

// UserRole tags users by the station they work.
type UserRole string

const (
	RoleOperator   UserRole = "OPERATOR"
	RoleCollector  UserRole = "COLLECTOR"
	RoleSupervisor UserRole = "SUPERVISOR"
)

// User is a warehouse worker referenced by assignments and attribution fields.
// Account management lives outside this system; only the identity is kept.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      UserRole  `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
