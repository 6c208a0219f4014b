package printing

import "errors"

var (
	// ErrRouteNotFound is returned for an unknown route day id.
	ErrRouteNotFound = errors.New("route not found")
	// ErrShiftNotActive is returned when printing is attempted on a route of
	// a shift that is no longer (or not yet) active.
	ErrShiftNotActive = errors.New("shift is not active")
	// ErrNoEnter is returned when an operator prints without having entered
	// the route first.
	ErrNoEnter = errors.New("operator has not entered the route")
	// ErrNoInitial is returned when an operator asks for new work before the
	// initial snapshot print.
	ErrNoInitial = errors.New("initial print required first")
	// ErrNothingToPrint is returned when the selector window is empty.
	ErrNothingToPrint = errors.New("nothing to print")
	// ErrJobNotFound is returned for an unknown print job id.
	ErrJobNotFound = errors.New("print job not found")
	// ErrNoDocument is returned when a job has no stored document, for
	// example a FAILED render.
	ErrNoDocument = errors.New("print job has no document")
)
