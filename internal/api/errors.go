package api

import (
	"errors"
	"net/http"

	"github.com/delsur/comandero/internal/pkg/httputil"
	"github.com/delsur/comandero/internal/service/catalog"
	"github.com/delsur/comandero/internal/service/lote"
	"github.com/delsur/comandero/internal/service/printing"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/service/shift"
)

// Error code tokens returned by this surface. Clients switch on the token,
// never on the message. FORBIDDEN belongs to the auth gateway in front and
// is listed here so the whole vocabulary lives in one place.
const (
	codeNoActiveShift      = "NO_ACTIVE_SHIFT"
	codeShiftAlreadyActive = "SHIFT_ALREADY_ACTIVE"
	codeDuplicateShift     = "DUPLICATE_SHIFT"
	codeScheduleNotFound   = "SCHEDULE_NOT_FOUND"
	codeShiftNotFound      = "SHIFT_NOT_FOUND"
	codeShiftClosed        = "SHIFT_CLOSED"
	codeRouteNotFound      = "ROUTE_NOT_FOUND"
	codeNothingToPrint     = "NOTHING_TO_PRINT"
	codeNoEnter            = "NO_ENTER"
	codeNoInitial          = "NO_INITIAL"
	codeJobNotFound        = "JOB_NOT_FOUND"
	codeNoDocument         = "NO_DOCUMENT"
	codeLoteNotFound       = "LOTE_NOT_FOUND"
	codeLoteNotRetriable   = "LOTE_NOT_RETRIABLE"
	codeCatalogNotFound    = "CATALOG_NOT_FOUND"
	codeNoActiveCatalog    = "NO_ACTIVE_CATALOG"
	codeValidationBlocked  = "VALIDATION_BLOCKED"
	codeAuthRequired       = "AUTH_REQUIRED"
	codeForbidden          = "FORBIDDEN"
	codeImapUnavailable    = "IMAP_UNAVAILABLE"
	codeInternal           = "INTERNAL"
)

// writeError maps service sentinels onto the typed error envelope. Unknown
// errors become an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shift.ErrNoActiveShift):
		httputil.NotFound(w, codeNoActiveShift, err.Error())
	case errors.Is(err, shift.ErrShiftAlreadyActive):
		httputil.Error(w, http.StatusConflict, codeShiftAlreadyActive, err.Error())
	case errors.Is(err, shift.ErrOpenInProgress):
		httputil.Error(w, http.StatusConflict, codeShiftAlreadyActive, err.Error())
	case errors.Is(err, shift.ErrDuplicateShift):
		httputil.Error(w, http.StatusConflict, codeDuplicateShift, err.Error())
	case errors.Is(err, shift.ErrScheduleNotFound):
		httputil.NotFound(w, codeScheduleNotFound, err.Error())
	case errors.Is(err, shift.ErrShiftClosed):
		httputil.Error(w, http.StatusConflict, codeShiftClosed, err.Error())
	case errors.Is(err, shift.ErrNotFound):
		httputil.NotFound(w, codeShiftNotFound, err.Error())
	case errors.Is(err, routestate.ErrRouteNotFound), errors.Is(err, printing.ErrRouteNotFound):
		httputil.NotFound(w, codeRouteNotFound, err.Error())
	case errors.Is(err, printing.ErrShiftNotActive):
		httputil.Error(w, http.StatusConflict, codeNoActiveShift, err.Error())
	case errors.Is(err, printing.ErrNoEnter):
		httputil.Error(w, http.StatusConflict, codeNoEnter, err.Error())
	case errors.Is(err, printing.ErrNoInitial):
		httputil.Error(w, http.StatusConflict, codeNoInitial, err.Error())
	case errors.Is(err, printing.ErrNothingToPrint):
		httputil.Error(w, http.StatusConflict, codeNothingToPrint, err.Error())
	case errors.Is(err, printing.ErrJobNotFound):
		httputil.NotFound(w, codeJobNotFound, err.Error())
	case errors.Is(err, printing.ErrNoDocument):
		httputil.NotFound(w, codeNoDocument, err.Error())
	case errors.Is(err, lote.ErrNotFound):
		httputil.NotFound(w, codeLoteNotFound, err.Error())
	case errors.Is(err, lote.ErrNotRetriable):
		httputil.Error(w, http.StatusConflict, codeLoteNotRetriable, err.Error())
	case errors.Is(err, lote.ErrNoActiveCatalog):
		httputil.Error(w, http.StatusConflict, codeNoActiveCatalog, err.Error())
	case errors.Is(err, catalog.ErrVersionNotFound):
		httputil.NotFound(w, codeCatalogNotFound, err.Error())
	case errors.Is(err, catalog.ErrNoEntries), errors.Is(err, catalog.ErrBadFamily):
		httputil.Error(w, http.StatusUnprocessableEntity, codeValidationBlocked, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
