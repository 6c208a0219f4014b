package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/delsur/comandero/internal/repository/postgres"
	"github.com/delsur/comandero/internal/storage"
)

const (
	// DefaultRetentionInterval is how often the retention sweep runs.
	DefaultRetentionInterval = 24 * time.Hour

	// DefaultRetentionAge is how long operational data is kept before a
	// sweep removes it.
	DefaultRetentionAge = 90 * 24 * time.Hour
)

// RetentionStats summarizes one sweep.
type RetentionStats struct {
	Events     int64
	PrintJobs  int64
	Blobs      int
	LoteBodies int64
}

// RetentionWorker ages out the bulky operational data: the event log,
// print jobs with their stored documents, and raw lote bodies. Shifts,
// routes, orders and the lote rows themselves stay for the audit trail.
type RetentionWorker struct {
	events   *postgres.EventRepo
	jobs     *postgres.PrintJobRepo
	lotes    *postgres.LoteRepo
	store    storage.Store
	interval time.Duration
	age      time.Duration
}

// NewRetentionWorker creates a retention worker keeping age worth of data.
func NewRetentionWorker(db *sql.DB, store storage.Store, age time.Duration) *RetentionWorker {
	if age <= 0 {
		age = DefaultRetentionAge
	}
	return &RetentionWorker{
		events:   postgres.NewEventRepo(db),
		jobs:     postgres.NewPrintJobRepo(db),
		lotes:    postgres.NewLoteRepo(db),
		store:    store,
		interval: DefaultRetentionInterval,
		age:      age,
	}
}

// Start runs the loop, sweeping once immediately and then on the interval.
// It blocks until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) {
	log.Printf("[Retention] Starting (interval=%s, age=%s)", w.interval, w.age)

	w.sweepLogged(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Retention] Stopping")
			return
		case <-ticker.C:
			w.sweepLogged(ctx)
		}
	}
}

func (w *RetentionWorker) sweepLogged(ctx context.Context) {
	start := time.Now()
	stats := w.Sweep(ctx)
	log.Printf("[Retention] swept events=%d print_jobs=%d blobs=%d lote_bodies=%d in %s",
		stats.Events, stats.PrintJobs, stats.Blobs, stats.LoteBodies,
		time.Since(start).Round(time.Millisecond))
}

// Sweep runs one retention pass and reports what it removed. Each step logs
// and moves on when it fails, so one bad table never blocks the rest.
func (w *RetentionWorker) Sweep(ctx context.Context) RetentionStats {
	cutoff := time.Now().UTC().Add(-w.age)
	var stats RetentionStats

	// Blobs first: job rows are only dropped once every referenced document
	// is gone, so a failed blob delete is retried on the next sweep.
	refs, err := w.jobs.BlobRefsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Retention] list blobs: %v", err)
	} else {
		failed := false
		for _, ref := range refs {
			if err := w.store.Delete(ctx, ref); err != nil {
				log.Printf("[Retention] delete blob %s: %v", ref, err)
				failed = true
				continue
			}
			stats.Blobs++
		}
		if !failed {
			n, err := w.jobs.DeleteBefore(ctx, cutoff)
			if err != nil {
				log.Printf("[Retention] delete print jobs: %v", err)
			}
			stats.PrintJobs = n
		}
	}

	n, err := w.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Retention] delete events: %v", err)
	}
	stats.Events = n

	n, err = w.lotes.PurgeBodiesBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Retention] purge lote bodies: %v", err)
	}
	stats.LoteBodies = n

	return stats
}
