package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/delsur/comandero/internal/api"
	"github.com/delsur/comandero/internal/config"
	"github.com/delsur/comandero/internal/events"
	"github.com/delsur/comandero/internal/imapingest"
	"github.com/delsur/comandero/internal/pdfrender"
	"github.com/delsur/comandero/internal/pkg/logger"
	"github.com/delsur/comandero/internal/repository/postgres"
	"github.com/delsur/comandero/internal/service/carryover"
	"github.com/delsur/comandero/internal/service/catalog"
	"github.com/delsur/comandero/internal/service/lote"
	"github.com/delsur/comandero/internal/service/printing"
	"github.com/delsur/comandero/internal/service/routestate"
	"github.com/delsur/comandero/internal/service/shift"
	"github.com/delsur/comandero/internal/storage"
	"github.com/delsur/comandero/internal/worker"
)

// checkPortAvailable verifies the target port is not already in use, so a
// stale process fails the boot loudly instead of confusing the stations.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("comandero server starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		log.Fatalf("pre-flight check failed: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Printf("[db] connected (%s)", logger.RedactDSN(cfg.Database.URL))

	// Redis is optional: it upgrades the shift-open lock from a PG advisory
	// lock to a cross-host lock. The PG fallback is fine for one host.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		redisCtx, redisCancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = redisClient.Ping(redisCtx).Err()
		redisCancel()
		if err != nil {
			log.Printf("[redis] unavailable (%v), falling back to PG advisory locks", err)
			redisClient = nil
		} else {
			log.Println("[redis] connected")
		}
	}

	bus := events.NewBus()
	bus.Start()
	defer bus.Stop()

	publisher := events.NewPublisher(postgres.NewEventRepo(db), bus)

	store, err := storage.New(cfg.Printing.Storage)
	if err != nil {
		log.Fatalf("init blob storage: %v", err)
	}
	renderer := pdfrender.New(cfg.Printing)
	templates := printing.NewTemplateEngine(cfg.Printing.TemplateDir)

	routeSvc := routestate.NewService(db, bus)

	loteSvc := lote.NewService(db, bus, routeSvc)
	loteSvc.SetFuzzyThreshold(cfg.Matcher.FuzzyThreshold)
	loteSvc.SetCurrency(cfg.Printing.Currency)

	printSvc := printing.NewService(db, bus, routeSvc, store, renderer, templates)
	catalogSvc := catalog.NewService(postgres.NewCatalogRepo(db), publisher)

	shiftSvc := shift.NewService(postgres.NewShiftRepo(db), publisher, db)
	shiftSvc.SetCarryover(carryover.NewEngine(db, bus, routeSvc))
	if redisClient != nil {
		shiftSvc.SetRedisClient(redisClient)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ingest *imapingest.Worker
	if cfg.IMAP.Host != "" && cfg.IMAP.User != "" {
		ingest = imapingest.NewWorker(db, bus, imapingest.NewGoImapClient(cfg.IMAP), loteSvc, cfg.IMAP)
		ingest.Start()
		defer ingest.Stop()
		shiftSvc.SetPoller(ingest)
		log.Printf("[main] imap ingest polling %s/%s every %s",
			cfg.IMAP.Addr(), cfg.IMAP.Folder, cfg.IMAP.PollInterval())
	} else {
		log.Println("[main] imap ingest disabled (no host/user configured)")
	}

	autoCloser := worker.NewShiftAutoCloser(shiftSvc, cfg.Shifts.AutoCloseInterval())
	go autoCloser.Start(ctx)

	recovery := worker.NewLoteRecoveryWorker(loteSvc)
	go recovery.Start(ctx)

	var imapIngest api.ImapIngest
	if ingest != nil {
		imapIngest = ingest
	}
	handlers := api.NewHandlers(db, bus, shiftSvc, routeSvc, loteSvc, printSvc, catalogSvc, imapIngest)
	server := api.NewServer(cfg.Server, cfg.CORS, handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("listening on %s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	log.Println("all services initialized, server is ready")

	<-done
	log.Println("shutting down...")

	cancel()

	// Stopping the bus closes every SSE subscriber channel, so the drain
	// below does not wait on held-open stream connections.
	bus.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	log.Println("server stopped")
}
