// Command retention ages out bulky operational data: old event-log rows,
// print jobs with their stored documents, and raw lote bodies. Run it as a
// sidecar loop or from cron with -once.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/delsur/comandero/internal/config"
	"github.com/delsur/comandero/internal/pkg/logger"
	"github.com/delsur/comandero/internal/storage"
	"github.com/delsur/comandero/internal/worker"
)

func main() {
	days := flag.Int("days", 90, "retention window in days")
	once := flag.Bool("once", false, "run one sweep and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Printf("connected to %s", logger.RedactDSN(cfg.Database.URL))

	store, err := storage.New(cfg.Printing.Storage)
	if err != nil {
		log.Fatalf("Failed to open blob storage: %v", err)
	}

	w := worker.NewRetentionWorker(db, store, time.Duration(*days)*24*time.Hour)

	if *once {
		stats := w.Sweep(context.Background())
		log.Printf("swept events=%d print_jobs=%d blobs=%d lote_bodies=%d",
			stats.Events, stats.PrintJobs, stats.Blobs, stats.LoteBodies)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down retention worker...")
	cancel()
	<-done
	log.Println("retention worker stopped")
}
