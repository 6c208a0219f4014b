package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/delsur/comandero/internal/storage"
)

type closerStub struct{ calls int64 }

func (c *closerStub) AutoCloseDue(ctx context.Context) (int, error) {
	atomic.AddInt64(&c.calls, 1)
	return 1, nil
}

type recovererStub struct {
	calls     int64
	olderThan atomic.Value
}

func (r *recovererStub) RecoverStuck(ctx context.Context, olderThan time.Time) (int, error) {
	atomic.AddInt64(&r.calls, 1)
	r.olderThan.Store(olderThan)
	return 0, nil
}

func TestShiftAutoCloserSweeps(t *testing.T) {
	stub := &closerStub{}
	w := NewShiftAutoCloser(stub, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt64(&stub.calls) == 0 {
		t.Error("expected at least one auto-close sweep")
	}
}

func TestLoteRecoverySweepsWithStaleCutoff(t *testing.T) {
	stub := &recovererStub{}
	w := NewLoteRecoveryWorkerWithConfig(stub, 10*time.Millisecond, 2*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt64(&stub.calls) == 0 {
		t.Fatal("expected at least one recovery sweep")
	}
	cutoff, _ := stub.olderThan.Load().(time.Time)
	age := time.Since(cutoff)
	if age < 90*time.Second || age > 5*time.Minute {
		t.Errorf("stale cutoff should trail now by ~2m, got %s", age)
	}
}

func TestDefaultsApplied(t *testing.T) {
	w := NewShiftAutoCloser(&closerStub{}, 0)
	if w.interval != DefaultAutoCloseInterval {
		t.Errorf("expected default interval, got %s", w.interval)
	}
	r := NewLoteRecoveryWorkerWithConfig(&recovererStub{}, 0, 0)
	if r.interval != DefaultRecoveryInterval || r.staleAge != DefaultStaleAge {
		t.Errorf("expected defaults, got %s / %s", r.interval, r.staleAge)
	}
}

func TestRetentionSweepRemovesAgedData(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "jobs/old-1.pdf", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "jobs/old-2.pdf", []byte("b")); err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery("SELECT pdf_ref FROM print_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"pdf_ref"}).
			AddRow("jobs/old-1.pdf").AddRow("jobs/old-2.pdf"))
	mock.ExpectExec("DELETE FROM print_jobs").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM events").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("UPDATE lotes SET body_raw").
		WillReturnResult(sqlmock.NewResult(0, 3))

	w := NewRetentionWorker(db, store, 90*24*time.Hour)
	stats := w.Sweep(ctx)

	if stats.Blobs != 2 || stats.PrintJobs != 2 || stats.Events != 5 || stats.LoteBodies != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if _, err := store.Get(ctx, "jobs/old-1.pdf"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("blob jobs/old-1.pdf should be gone")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRetentionKeepsJobRowsWhenBlobDeleteFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	// An absolute key is rejected by the store, standing in for a backend
	// failure. The job rows must survive so the next sweep retries.
	mock.ExpectQuery("SELECT pdf_ref FROM print_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"pdf_ref"}).AddRow("/bad/abs.pdf"))
	mock.ExpectExec("DELETE FROM events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE lotes SET body_raw").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := NewRetentionWorker(db, store, time.Hour)
	stats := w.Sweep(context.Background())

	if stats.PrintJobs != 0 || stats.Blobs != 0 {
		t.Errorf("stats = %+v, want no job rows deleted", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
