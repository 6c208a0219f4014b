// Command verify-install checks a comandero database after migrations run
// at a new site: schema completeness, seed data, the ingest idempotency
// index, and a few state invariants. Exit code 0 means the install is sound.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/delsur/comandero/internal/pkg/logger"
)

// requiredTables is the full schema the migrations create.
var requiredTables = []string{
	"users", "shift_schedules", "shifts", "shift_qualifications",
	"shift_route_collectors", "product_catalogs", "catalog_products",
	"route_catalogs", "catalog_routes", "route_days", "lotes",
	"client_orders", "order_lines", "owner_affinities",
	"round_robin_cursors", "operator_route_progress",
	"collector_route_progress", "print_jobs", "print_job_items",
	"events", "imap_cursors",
}

type checkResult struct {
	Name    string
	Passed  bool
	Detail  string
	Elapsed time.Duration
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "FATAL: DATABASE_URL is required")
		os.Exit(1)
	}

	fmt.Println("=========================================================")
	fmt.Println(" comandero install verification")
	fmt.Println("=========================================================")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(3)

	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot connect to database: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database connection established (%s)\n", logger.RedactDSN(dsn))
	fmt.Println()

	results := []checkResult{
		checkTablesExist(ctx, db),
		checkSchedulesSeeded(ctx, db),
		checkSingleActiveShift(ctx, db),
		checkActiveCatalogs(ctx, db, "product_catalogs"),
		checkActiveCatalogs(ctx, db, "route_catalogs"),
		checkIngestIdentityIndex(ctx, db),
		checkEventLogIndex(ctx, db),
		checkStuckLotes(ctx, db),
	}

	fmt.Println()
	fmt.Println("=========================================================")
	fmt.Println(" VERIFICATION REPORT")
	fmt.Println("=========================================================")

	allPassed := true
	for i, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("  [%d] %-45s %s  (%s)\n", i+1, r.Name, status, r.Elapsed.Round(time.Millisecond))
		if r.Detail != "" {
			for _, line := range strings.Split(r.Detail, "\n") {
				fmt.Printf("      %s\n", line)
			}
		}
	}

	fmt.Println("=========================================================")
	if allPassed {
		fmt.Println("  OVERALL: PASS, install is sound")
		os.Exit(0)
	}
	fmt.Println("  OVERALL: FAIL, one or more checks failed")
	os.Exit(1)
}

func checkTablesExist(ctx context.Context, db *sql.DB) checkResult {
	start := time.Now()
	name := fmt.Sprintf("All %d schema tables exist", len(requiredTables))

	rows, err := db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public'`)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Scan error: %v", err), Elapsed: time.Since(start)}
		}
		present[t] = true
	}
	if err := rows.Err(); err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Rows error: %v", err), Elapsed: time.Since(start)}
	}

	var missing []string
	for _, t := range requiredTables {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return checkResult{Name: name, Passed: false,
			Detail:  fmt.Sprintf("Missing tables: %s", strings.Join(missing, ", ")),
			Elapsed: time.Since(start)}
	}
	return checkResult{Name: name, Passed: true, Elapsed: time.Since(start)}
}

func checkSchedulesSeeded(ctx context.Context, db *sql.DB) checkResult {
	start := time.Now()
	name := "Shift schedules seeded"

	rows, err := db.QueryContext(ctx,
		`SELECT slot FROM shift_schedules WHERE active ORDER BY start_time`)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Scan error: %v", err), Elapsed: time.Since(start)}
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Rows error: %v", err), Elapsed: time.Since(start)}
	}

	if len(slots) == 0 {
		return checkResult{Name: name, Passed: false,
			Detail: "No active shift schedules; shifts cannot be opened", Elapsed: time.Since(start)}
	}
	return checkResult{Name: name, Passed: true,
		Detail: fmt.Sprintf("Active slots: %s", strings.Join(slots, ", ")), Elapsed: time.Since(start)}
}

func checkSingleActiveShift(ctx context.Context, db *sql.DB) checkResult {
	start := time.Now()
	name := "At most one ACTIVE shift"

	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shifts WHERE state = 'ACTIVE'`).Scan(&n)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}
	return checkResult{Name: name, Passed: n <= 1,
		Detail: fmt.Sprintf("active_shifts=%d", n), Elapsed: time.Since(start)}
}

func checkActiveCatalogs(ctx context.Context, db *sql.DB, table string) checkResult {
	start := time.Now()
	name := fmt.Sprintf("At most one active row in %s", table)

	var n int
	err := db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE active`, table)).Scan(&n)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}

	detail := fmt.Sprintf("active=%d", n)
	if n == 0 {
		detail += " (none uploaded yet; lotes will not match until one is activated)"
	}
	return checkResult{Name: name, Passed: n <= 1, Detail: detail, Elapsed: time.Since(start)}
}

func checkIngestIdentityIndex(ctx context.Context, db *sql.DB) checkResult {
	start := time.Now()
	name := "Ingest idempotency index on lotes"

	var def string
	err := db.QueryRowContext(ctx, `
		SELECT indexdef FROM pg_indexes
		WHERE tablename = 'lotes' AND indexname = 'lotes_imap_identity'
	`).Scan(&def)
	if err == sql.ErrNoRows {
		return checkResult{Name: name, Passed: false,
			Detail: "Index lotes_imap_identity is missing; duplicate mailbox messages would ingest twice", Elapsed: time.Since(start)}
	}
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}
	if !strings.Contains(def, "UNIQUE") {
		return checkResult{Name: name, Passed: false,
			Detail: fmt.Sprintf("Index exists but is not UNIQUE: %s", def), Elapsed: time.Since(start)}
	}
	return checkResult{Name: name, Passed: true, Elapsed: time.Since(start)}
}

func checkEventLogIndex(ctx context.Context, db *sql.DB) checkResult {
	start := time.Now()
	name := "Event log replay index (ts, seq)"

	rows, err := db.QueryContext(ctx, `
		SELECT indexname FROM pg_indexes
		WHERE tablename = 'events' AND indexdef ILIKE '%(ts%'
	`)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Scan error: %v", err), Elapsed: time.Since(start)}
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Rows error: %v", err), Elapsed: time.Since(start)}
	}

	if len(names) == 0 {
		return checkResult{Name: name, Passed: false,
			Detail: "No index on events(ts, ...); SSE replay would scan the whole log", Elapsed: time.Since(start)}
	}
	return checkResult{Name: name, Passed: true,
		Detail: fmt.Sprintf("Found: %s", strings.Join(names, ", ")), Elapsed: time.Since(start)}
}

func checkStuckLotes(ctx context.Context, db *sql.DB) checkResult {
	start := time.Now()
	name := "No lotes stuck in PENDING"

	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lotes
		WHERE parse_status = 'PENDING' AND created_at < NOW() - INTERVAL '10 minutes'
	`).Scan(&n)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("Query error: %v", err), Elapsed: time.Since(start)}
	}
	if n > 0 {
		return checkResult{Name: name, Passed: false,
			Detail:  fmt.Sprintf("%d lote(s) pending for over 10 minutes; is the server (or its recovery sweeper) running?", n),
			Elapsed: time.Since(start)}
	}
	return checkResult{Name: name, Passed: true, Elapsed: time.Since(start)}
}
