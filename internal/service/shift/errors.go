package shift

import "errors"

// Sentinel errors for the shift service layer.
var (
	ErrNoActiveShift      = errors.New("no active shift")
	ErrShiftAlreadyActive = errors.New("a shift is already active")
	ErrDuplicateShift     = errors.New("shift already exists for that date and slot")
	ErrScheduleNotFound   = errors.New("no active schedule for that slot")
	ErrNotFound           = errors.New("shift not found")
	ErrShiftClosed        = errors.New("shift is closed")
	ErrOpenInProgress     = errors.New("another shift open is in progress")
)
