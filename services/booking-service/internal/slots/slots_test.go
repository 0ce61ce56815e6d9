package slots

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/memstore"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/policy"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
)

func newTestService(now time.Time, seed ...model.Slot) (*Service, *memstore.Slots) {
	p := policy.Default()
	p.Timezone = time.UTC
	repo := memstore.NewSlots(seed...)
	svc := NewService(repo, p, validation.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestCreateBatchSkipsLunch(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	created, err := svc.CreateBatch(context.Background(), BatchInput{
		Date: "2024-06-10", Location: "Location B", Start: "09:00", End: "17:00",
	})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	var times []string
	for _, s := range created {
		if !s.IsAvailable || s.Location != "Location B" {
			t.Fatalf("unexpected slot %+v", s)
		}
		times = append(times, s.Time)
	}
	want := []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}
	if !reflect.DeepEqual(times, want) {
		t.Fatalf("expected %v, got %v", want, times)
	}
}

func TestCreateBatchRejectsUnknownLocation(t *testing.T) {
	svc, _ := newTestService(time.Now())
	_, err := svc.CreateBatch(context.Background(), BatchInput{Date: "2024-06-10", Location: "Mars", Start: "09:00", End: "10:00"})
	var verr *validation.Error
	if !errors.As(err, &verr) || verr.Fields["location"] == "" {
		t.Fatalf("expected location validation error, got %v", err)
	}
}

func TestOpenTimesAppliesLeadTime(t *testing.T) {
	now := time.Date(2024, 6, 9, 10, 30, 0, 0, time.UTC)
	svc, _ := newTestService(now,
		model.Slot{Date: "2024-06-10", Time: "09:00", Location: "Location B", IsAvailable: true},
		model.Slot{Date: "2024-06-10", Time: "11:00", Location: "Location B", IsAvailable: true},
		model.Slot{Date: "2024-06-10", Time: "10:00", Location: "Location B", IsAvailable: false},
		model.Slot{Date: "2024-06-10", Time: "12:00", Location: "Location A", IsAvailable: true},
	)
	got, err := svc.OpenTimes(context.Background(), "2024-06-10", "Location B")
	if err != nil {
		t.Fatalf("OpenTimes failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"11:00"}) {
		t.Fatalf("expected [11:00], got %v", got)
	}
}

func TestDeleteForDateProtectsBookedSlots(t *testing.T) {
	svc, repo := newTestService(time.Now(),
		model.Slot{ID: "open", Date: "2024-06-10", Time: "09:00", Location: "Location A", IsAvailable: true},
		model.Slot{ID: "booked", Date: "2024-06-10", Time: "10:00", Location: "Location A", IsAvailable: false},
	)
	n, err := svc.DeleteForDate(context.Background(), "2024-06-10", "", true)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got %d (%v)", n, err)
	}
	if _, ok := repo.Get("booked"); !ok {
		t.Fatal("booked slot must survive bulk delete")
	}

	n, err = svc.DeleteForDate(context.Background(), "2024-06-10", "", false)
	if err != nil || n != 1 {
		t.Fatalf("expected booked slot deleted when explicitly targeted, got %d (%v)", n, err)
	}
}

func TestAdminListPurgesExpiredSlots(t *testing.T) {
	now := time.Date(2024, 6, 10, 10, 5, 0, 0, time.UTC)
	svc, repo := newTestService(now,
		model.Slot{ID: "past", Date: "2024-06-10", Time: "09:00", Location: "Location A", IsAvailable: true},
		model.Slot{ID: "grace", Date: "2024-06-10", Time: "10:00", Location: "Location A", IsAvailable: true},
		model.Slot{ID: "later", Date: "2024-06-10", Time: "15:00", Location: "Location A", IsAvailable: true},
	)
	got, err := svc.AdminList(context.Background(), "2024-06-10", "")
	if err != nil {
		t.Fatalf("AdminList failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 slots after purge, got %+v", got)
	}
	if _, ok := repo.Get("past"); ok {
		t.Fatal("expected past slot deleted from the store")
	}
}

func TestListSlotsRejectsBadDate(t *testing.T) {
	svc, _ := newTestService(time.Now())
	var verr *validation.Error
	if _, err := svc.ListSlots(context.Background(), "10-06-2024", ""); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
