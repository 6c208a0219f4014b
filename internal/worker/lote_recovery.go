package worker

import (
	"context"
	"log"
	"time"
)

const (
	// DefaultRecoveryInterval is how often the sweeper scans for stuck lotes.
	DefaultRecoveryInterval = time.Minute

	// DefaultStaleAge is how long a lote can sit PENDING before it counts as
	// stuck (process crashed between ingest and processing).
	DefaultStaleAge = 2 * time.Minute
)

// LoteRecoverer is the slice of the lote service the sweeper drives.
type LoteRecoverer interface {
	RecoverStuck(ctx context.Context, olderThan time.Time) (int, error)
}

// LoteRecoveryWorker re-drives lotes stuck in PENDING through processing.
// Safe because processing is idempotent per lote: a locked row is skipped,
// an already-OK lote is a no-op.
type LoteRecoveryWorker struct {
	lotes    LoteRecoverer
	interval time.Duration
	staleAge time.Duration
}

// NewLoteRecoveryWorker creates a recovery worker with default timing.
func NewLoteRecoveryWorker(lotes LoteRecoverer) *LoteRecoveryWorker {
	return &LoteRecoveryWorker{
		lotes:    lotes,
		interval: DefaultRecoveryInterval,
		staleAge: DefaultStaleAge,
	}
}

// NewLoteRecoveryWorkerWithConfig creates a recovery worker with custom
// timing.
func NewLoteRecoveryWorkerWithConfig(lotes LoteRecoverer, interval, staleAge time.Duration) *LoteRecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &LoteRecoveryWorker{lotes: lotes, interval: interval, staleAge: staleAge}
}

// Start runs the loop. It blocks until ctx is cancelled.
func (w *LoteRecoveryWorker) Start(ctx context.Context) {
	log.Printf("[LoteRecovery] Starting (interval=%s, stale_age=%s)", w.interval, w.staleAge)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LoteRecovery] Stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *LoteRecoveryWorker) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	recovered, err := w.lotes.RecoverStuck(sweepCtx, time.Now().UTC().Add(-w.staleAge))
	if err != nil {
		log.Printf("[LoteRecovery] sweep: %v", err)
		return
	}
	if recovered > 0 {
		log.Printf("[LoteRecovery] re-drove %d stuck lote(s)", recovered)
	}
}
