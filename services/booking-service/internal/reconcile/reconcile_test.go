package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/booking"
)

type fakeLocker struct {
	free bool
	err  error
	keys []int64
}

func (f *fakeLocker) TryAdvisoryLock(ctx context.Context, key int64, fn func(context.Context)) (bool, error) {
	f.keys = append(f.keys, key)
	if f.err != nil || !f.free {
		return false, f.err
	}
	fn(ctx)
	return true, nil
}

type fakeReconciler struct {
	calls  int
	minAge time.Duration
	batch  int
}

func (f *fakeReconciler) Reconcile(_ context.Context, minAge time.Duration, batch int) (booking.ReconcileReport, error) {
	f.calls++
	f.minAge, f.batch = minAge, batch
	return booking.ReconcileReport{Checked: 1, Confirmed: 1}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceHonoursLock(t *testing.T) {
	rec := &fakeReconciler{}
	locker := &fakeLocker{free: true}
	job := New(locker, rec, nil, discardLogger(), Config{MinAge: time.Minute, BatchSize: 5, AdvisoryLockKey: 42})

	job.RunOnce(context.Background())
	if rec.calls != 1 || rec.minAge != time.Minute || rec.batch != 5 {
		t.Fatalf("unexpected reconcile call: %+v", rec)
	}
	if locker.keys[0] != 42 {
		t.Fatalf("expected lock key 42, got %d", locker.keys[0])
	}

	locker.free = false
	job.RunOnce(context.Background())
	if rec.calls != 1 {
		t.Fatal("reconcile must not run while another instance holds the lock")
	}

	locker.err = errors.New("db down")
	job.RunOnce(context.Background())
	if rec.calls != 1 {
		t.Fatal("reconcile must not run when the lock cannot be checked")
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	job := New(&fakeLocker{}, &fakeReconciler{}, nil, discardLogger(), Config{Schedule: "every now and then"})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	job := New(&fakeLocker{}, &fakeReconciler{}, nil, discardLogger(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPendingRetentionOutlivesExpiry(t *testing.T) {
	got, err := PendingRetention(2*time.Hour, 15*time.Minute, "@every 5m")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2*time.Hour+15*time.Minute {
		t.Fatalf("expected 2h15m, got %s", got)
	}

	got, err = PendingRetention(10*time.Minute, 30*time.Minute, "0 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	if got != 30*time.Minute+3*time.Hour {
		t.Fatalf("expected min age plus three hourly runs, got %s", got)
	}

	if _, err := PendingRetention(time.Hour, 0, "every now and then"); err == nil {
		t.Fatal("expected a schedule parse error")
	}
}
