package shift

import (
	"context"
	"time"

	"github.com/delsur/comandero/internal/domain"
)

// Repository defines the data access contract for shifts and their per-shift
// configuration. Implementations must be safe for concurrent use.
type Repository interface {
	// Active returns the single ACTIVE shift. Returns ErrNoActiveShift when
	// none is active.
	Active(ctx context.Context) (*domain.Shift, error)

	// Get returns a shift by id. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Shift, error)

	// ActiveScheduleBySlot returns the active schedule row for the slot.
	// Returns ErrScheduleNotFound when the slot has no active schedule.
	ActiveScheduleBySlot(ctx context.Context, slot string) (*domain.ShiftSchedule, error)

	// Create inserts a new ACTIVE shift. Returns ErrShiftAlreadyActive or
	// ErrDuplicateShift when the corresponding uniqueness is violated.
	Create(ctx context.Context, s *domain.Shift) error

	// Close transitions a shift to CLOSED. Returns ErrNotFound when the id
	// does not name an ACTIVE shift.
	Close(ctx context.Context, id string, endedAt time.Time, endedBy string) error

	// DueForAutoClose returns ACTIVE shifts whose scheduled end has elapsed.
	DueForAutoClose(ctx context.Context, now time.Time) ([]domain.Shift, error)

	// Qualifications returns every qualification row of the shift.
	Qualifications(ctx context.Context, shiftID string) ([]domain.Qualification, error)

	// ReplaceQualifications replaces the shift's qualification set.
	ReplaceQualifications(ctx context.Context, shiftID string, rows []domain.Qualification) error

	// Collectors returns the shift's route→collector map.
	Collectors(ctx context.Context, shiftID string) ([]domain.RouteCollector, error)

	// SetCollector upserts one route→collector binding.
	SetCollector(ctx context.Context, shiftID, routeNorm string, userID *string) error
}
