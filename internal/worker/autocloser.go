// Package worker holds the background sweepers: the shift auto-closer and
// the stuck-lote recovery loop.
package worker

import (
	"context"
	"log"
	"time"
)

// DefaultAutoCloseInterval is how often the auto-closer checks for shifts
// past their scheduled end.
const DefaultAutoCloseInterval = 30 * time.Second

// ShiftCloser is the slice of the shift service the auto-closer drives.
type ShiftCloser interface {
	AutoCloseDue(ctx context.Context) (int, error)
}

// ShiftAutoCloser closes ACTIVE shifts whose scheduled end has passed, so a
// forgotten shift cannot keep ingesting into the night.
type ShiftAutoCloser struct {
	shifts   ShiftCloser
	interval time.Duration
}

// NewShiftAutoCloser creates an auto-closer with the given cadence.
func NewShiftAutoCloser(shifts ShiftCloser, interval time.Duration) *ShiftAutoCloser {
	if interval <= 0 {
		interval = DefaultAutoCloseInterval
	}
	return &ShiftAutoCloser{shifts: shifts, interval: interval}
}

// Start runs the loop. It blocks until ctx is cancelled.
func (w *ShiftAutoCloser) Start(ctx context.Context) {
	log.Printf("[ShiftAutoCloser] Starting (interval=%s)", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ShiftAutoCloser] Stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ShiftAutoCloser) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	closed, err := w.shifts.AutoCloseDue(sweepCtx)
	if err != nil {
		log.Printf("[ShiftAutoCloser] sweep: %v", err)
		return
	}
	if closed > 0 {
		log.Printf("[ShiftAutoCloser] closed %d overdue shift(s)", closed)
	}
}
