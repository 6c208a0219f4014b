package shift

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/pkg/distlock"
)

// openLockKey serializes shift opening across processes: carryover plus the
// backlog poll must not race a concurrent open.
const openLockKey = "comandero:shift:open"

// Carryover copies the previous shift's unprinted work into a new shift.
// Implemented by the carryover engine.
type Carryover interface {
	Run(ctx context.Context, newShiftID, actorID string) (lotes, lines int, err error)
}

// Poller triggers one synchronous mailbox poll cycle. Implemented by the
// IMAP ingest worker.
type Poller interface {
	PollOnce(ctx context.Context) error
}

// Service implements shift lifecycle and per-shift configuration. All public
// methods are safe for concurrent use.
type Service struct {
	repo      Repository
	publisher *events.Publisher
	db        *sql.DB
	redis     *redis.Client
	carry     Carryover
	poller    Poller
}

// NewService creates a shift service. db is used for the advisory-lock
// fallback when no Redis client is configured.
func NewService(repo Repository, publisher *events.Publisher, db *sql.DB) *Service {
	return &Service{repo: repo, publisher: publisher, db: db}
}

// SetRedisClient enables Redis-backed locking for shift opening.
func (s *Service) SetRedisClient(client *redis.Client) { s.redis = client }

// SetCarryover wires the carryover engine invoked on every open.
func (s *Service) SetCarryover(c Carryover) { s.carry = c }

// SetPoller wires the mailbox poller nudged after every open.
func (s *Service) SetPoller(p Poller) { s.poller = p }

// Active returns the currently ACTIVE shift.
func (s *Service) Active(ctx context.Context) (*domain.Shift, error) {
	return s.repo.Active(ctx)
}

// Get returns one shift by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Shift, error) {
	return s.repo.Get(ctx, id)
}

// Open activates a new shift for (date, slot): validates the schedule,
// creates the ACTIVE row, runs carryover from the previous closed shift, and
// triggers one immediate mailbox poll. Carryover and poll failures are
// logged, not returned, since the shift is already live when they run.
func (s *Service) Open(ctx context.Context, slot string, date time.Time, actorID string) (*domain.Shift, error) {
	lock := distlock.NewLock(s.redis, s.db, openLockKey, 30*time.Second)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire open lock: %w", err)
	}
	if !acquired {
		return nil, ErrOpenInProgress
	}
	defer lock.Release(ctx)

	if _, err := s.repo.Active(ctx); err == nil {
		return nil, ErrShiftAlreadyActive
	} else if err != ErrNoActiveShift {
		return nil, err
	}

	sched, err := s.repo.ActiveScheduleBySlot(ctx, slot)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	end, err := scheduledEnd(date, sched)
	if err != nil {
		return nil, err
	}

	sh := &domain.Shift{
		ID:             uuid.New().String(),
		Date:           date,
		Slot:           slot,
		State:          domain.ShiftActive,
		StartedAt:      now,
		ScheduledEndAt: end,
	}
	if err := s.repo.Create(ctx, sh); err != nil {
		return nil, err
	}

	ev := events.New(domain.EventShiftStarted, domain.EntityShift, sh.ID, map[string]interface{}{
		"slot":             sh.Slot,
		"date":             sh.Date.Format("2006-01-02"),
		"scheduled_end_at": sh.ScheduledEndAt,
	})
	if _, err := s.publisher.Publish(ctx, events.WithActor(ev, actorID)); err != nil {
		log.Printf("[shift.Service] publish SHIFT_STARTED: %v", err)
	}

	if s.carry != nil {
		lotes, lines, err := s.carry.Run(ctx, sh.ID, actorID)
		if err != nil {
			log.Printf("[shift.Service] carryover into shift %s failed: %v", sh.ID, err)
		} else if lotes > 0 {
			log.Printf("[shift.Service] carryover into shift %s: %d lotes, %d lines", sh.ID, lotes, lines)
		}
	}

	if s.poller != nil {
		if err := s.poller.PollOnce(ctx); err != nil {
			log.Printf("[shift.Service] backlog poll after open: %v", err)
		}
	}

	return sh, nil
}

// Close closes the shift by id. The id must name the currently ACTIVE shift.
func (s *Service) Close(ctx context.Context, id, actorID string) (*domain.Shift, error) {
	active, err := s.repo.Active(ctx)
	if err != nil {
		return nil, err
	}
	if active.ID != id {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	if err := s.repo.Close(ctx, active.ID, now, actorID); err != nil {
		return nil, err
	}
	active.State = domain.ShiftClosed
	active.EndedAt = &now
	active.EndedBy = actorID

	ev := events.New(domain.EventShiftClosed, domain.EntityShift, active.ID, map[string]interface{}{
		"slot":     active.Slot,
		"ended_at": now,
	})
	if _, err := s.publisher.Publish(ctx, events.WithActor(ev, actorID)); err != nil {
		log.Printf("[shift.Service] publish SHIFT_CLOSED: %v", err)
	}
	return active, nil
}

// AutoCloseDue closes every ACTIVE shift whose scheduled end has elapsed.
// Returns the number of shifts closed. Invoked by the auto-closer worker.
func (s *Service) AutoCloseDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.repo.DueForAutoClose(ctx, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, sh := range due {
		if err := s.repo.Close(ctx, sh.ID, now, "auto-closer"); err != nil {
			log.Printf("[shift.Service] auto-close %s: %v", sh.ID, err)
			continue
		}
		closed++
		ev := events.New(domain.EventShiftClosedAuto, domain.EntityShift, sh.ID, map[string]interface{}{
			"slot":             sh.Slot,
			"scheduled_end_at": sh.ScheduledEndAt,
			"ended_at":         now,
		})
		if _, err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[shift.Service] publish SHIFT_CLOSED_AUTO: %v", err)
		}
	}
	return closed, nil
}

// Qualifications returns the shift's operator qualification rows.
func (s *Service) Qualifications(ctx context.Context, shiftID string) ([]domain.Qualification, error) {
	if _, err := s.repo.Get(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.Qualifications(ctx, shiftID)
}

// ReplaceQualifications replaces the shift's pool configuration. Refused on
// CLOSED shifts; the pool only matters while assignment can still happen.
func (s *Service) ReplaceQualifications(ctx context.Context, shiftID string, rows []domain.Qualification) error {
	sh, err := s.repo.Get(ctx, shiftID)
	if err != nil {
		return err
	}
	if sh.State == domain.ShiftClosed {
		return ErrShiftClosed
	}
	for i := range rows {
		rows[i].ShiftID = shiftID
	}
	return s.repo.ReplaceQualifications(ctx, shiftID, rows)
}

// Collectors returns the shift's route→collector assignments.
func (s *Service) Collectors(ctx context.Context, shiftID string) ([]domain.RouteCollector, error) {
	if _, err := s.repo.Get(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.Collectors(ctx, shiftID)
}

// SetCollector binds (or clears, with nil userID) the collector of a route.
func (s *Service) SetCollector(ctx context.Context, shiftID, routeNorm string, userID *string) error {
	sh, err := s.repo.Get(ctx, shiftID)
	if err != nil {
		return err
	}
	if sh.State == domain.ShiftClosed {
		return ErrShiftClosed
	}
	return s.repo.SetCollector(ctx, shiftID, routeNorm, userID)
}

// scheduledEnd resolves the shift's scheduled end instant: the schedule's end
// time on the shift date, rolling to the next day when the slot crosses
// midnight (end at or before start).
func scheduledEnd(date time.Time, sched *domain.ShiftSchedule) (time.Time, error) {
	startMin, err := parseClock(sched.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule start_time %q: %w", sched.StartTime, err)
	}
	endMin, err := parseClock(sched.EndTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule end_time %q: %w", sched.EndTime, err)
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := day.Add(time.Duration(endMin) * time.Minute)
	if endMin <= startMin {
		end = end.AddDate(0, 0, 1)
	}
	return end, nil
}

// parseClock parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("not a clock time")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return h*60 + m, nil
}
