package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/availability"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

func TestBookWithoutDepositConsumesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	appt, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a", "brow-a"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.ServiceName != "Classic Lashes + Brow Tint" || appt.ServicePriceCents != 6500 {
		t.Fatalf("unexpected snapshot: %q %d", appt.ServiceName, appt.ServicePriceCents)
	}
	if appt.ServiceID != "lash-a" || len(appt.ServiceIDs) != 2 || appt.ClientEmail != "maria@example.com" {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if appt.SlotID != "a-10" {
		t.Fatalf("expected slot a-10 consumed, got %q", appt.SlotID)
	}

	all, err := h.slotSvc.ListSlots(ctx, "2024-06-10", "Location A")
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	for _, tm := range availability.OpenTimes(all, "2024-06-10", testNow, 24*time.Hour) {
		if tm == "10:00" {
			t.Fatal("booked time must no longer be listed as open")
		}
	}
	if len(h.notifier.confirmed) != 1 {
		t.Fatalf("expected one confirmation notification, got %d", len(h.notifier.confirmed))
	}
	if len(h.gateway.requests) != 0 {
		t.Fatal("no payment step expected outside the deposit pair")
	}
}

func TestBookReportsEveryInvalidField(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Book(context.Background(), booking.Form{
		Location:    "Location C",
		Date:        "2024/06/10",
		Time:        "10h",
		ClientPhone: "123",
		ClientEmail: "not-an-email",
	})
	var verr *booking.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"location", "service_ids", "date", "time", "client_name", "client_phone", "client_email"} {
		if verr.Fields[f] == "" {
			t.Fatalf("expected %s in %v", f, verr.Fields)
		}
	}
	if h.ledger.Count() != 0 {
		t.Fatal("nothing may be persisted on validation failure")
	}
}

func TestBookRejectsZeroPriceBeforePersistence(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Book(context.Background(), form("Location A", "2024-06-10", "10:00", "free-a"))
	var verr *booking.ValidationError
	if !errors.As(err, &verr) || verr.Fields["service_ids"] == "" {
		t.Fatalf("expected service_ids validation error, got %v", err)
	}
	if h.ledger.Count() != 0 {
		t.Fatal("zero priced booking reached persistence")
	}
	if sl, _ := h.slots.Get("a-10"); !sl.IsAvailable {
		t.Fatal("slot must stay open")
	}
}

func TestBookRejectsMixedLocationsAndDuplicateCategories(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var verr *booking.ValidationError

	_, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a", "brow-b"))
	if !errors.As(err, &verr) || verr.Fields["service_ids"] == "" {
		t.Fatalf("expected location mismatch error, got %v", err)
	}
	_, err = h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a", "lash-a"))
	if !errors.As(err, &verr) || verr.Fields["service_ids"] == "" {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	_, err = h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a", "missing"))
	if !errors.As(err, &verr) || verr.Fields["service_ids"] == "" {
		t.Fatalf("expected unknown service error, got %v", err)
	}
}

func TestBookEnforcesLeadTime(t *testing.T) {
	h := newHarness(t)
	h.now = testNowPlus(9*24 - 1) // 2024-06-10 11:00
	_, err := h.svc.Book(context.Background(), form("Location A", "2024-06-10", "10:00", "lash-a"))
	var verr *booking.ValidationError
	if !errors.As(err, &verr) || verr.Fields["time"] == "" {
		t.Fatalf("expected lead time error, got %v", err)
	}
}

func TestBookSlotErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a")); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "brow-a")); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if _, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "15:00", "brow-a")); !errors.Is(err, model.ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestConcurrentBookingsConfirmAtMostOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const clients = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, taken := 0, 0
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "11:00", "brow-a"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || taken != clients-1 {
		t.Fatalf("expected exactly one booking, got ok=%d taken=%d", ok, taken)
	}
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("push endpoint down")
	if _, err := h.svc.Book(context.Background(), form("Location A", "2024-06-10", "10:00", "lash-a")); err != nil {
		t.Fatalf("Book failed because of notifier: %v", err)
	}
	if h.ledger.Count() != 1 {
		t.Fatal("appointment must be kept")
	}
}

func TestSelectionLimitAndCategories(t *testing.T) {
	sel := booking.NewSelection(3)
	for _, svc := range []model.Service{
		{ID: "1", Category: "lashes"},
		{ID: "2", Category: "eyebrows"},
		{ID: "3", Category: "hair-removal"},
	} {
		if err := sel.Add(svc); err != nil {
			t.Fatalf("Add(%s) failed: %v", svc.ID, err)
		}
	}
	if err := sel.Add(model.Service{ID: "4", Category: "nails"}); !errors.Is(err, booking.ErrSelectionLimit) {
		t.Fatalf("expected ErrSelectionLimit, got %v", err)
	}
	if ids := sel.IDs(); len(ids) != 3 || ids[0] != "1" || ids[1] != "2" || ids[2] != "3" {
		t.Fatalf("selection changed after rejected add: %v", ids)
	}

	sel.Remove("3")
	if err := sel.Add(model.Service{ID: "5", Category: "Lashes"}); !errors.Is(err, booking.ErrCategoryTaken) {
		t.Fatalf("expected ErrCategoryTaken, got %v", err)
	}
	if len(sel.Services()) != 2 {
		t.Fatalf("expected 2 services, got %d", len(sel.Services()))
	}
}

func TestQuote(t *testing.T) {
	h := newHarness(t)
	q, err := h.svc.Quote(context.Background(), form("Location B", "2024-06-10", "10:00", "lash-b", "brow-b"))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if !q.DepositRequired || q.TotalCents != 7500 || q.DepositCents != 3000 || q.BalanceCents != 4500 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	q, err = h.svc.Quote(context.Background(), form("Location B", "2024-06-10", "10:00", "brow-b"))
	if err != nil || q.DepositRequired || q.BalanceCents != 2500 {
		t.Fatalf("unexpected quote without lashes: %+v (%v)", q, err)
	}
}

func TestCancelReopensSlotAndChecksEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	appt, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, err := h.svc.Cancel(ctx, appt.ID, booking.Actor{Email: "someone@else.com"}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for mismatched email, got %v", err)
	}
	if _, err := h.svc.Cancel(ctx, appt.ID, booking.Actor{Email: "MARIA@example.com "}); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if sl, _ := h.slots.Get("a-10"); !sl.IsAvailable {
		t.Fatal("slot must be re-opened on cancellation")
	}
	if len(h.notifier.cancelled) != 1 {
		t.Fatal("expected a cancellation notification")
	}
	if _, err := h.svc.Cancel(ctx, appt.ID, booking.Actor{Admin: true}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second cancel, got %v", err)
	}
}

func TestCancelRefusedForDepositPairForEveryActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	appt := confirmLashesBooking(t, h)

	for _, actor := range []booking.Actor{{Email: appt.ClientEmail}, {Admin: true}} {
		_, err := h.svc.Cancel(ctx, appt.ID, actor)
		var refused *booking.CancellationRefusedError
		if !errors.As(err, &refused) || refused.ContactURL == "" {
			t.Fatalf("actor %+v: expected CancellationRefusedError, got %v", actor, err)
		}
	}
	if _, err := h.ledger.Get(ctx, appt.ID); err != nil {
		t.Fatalf("appointment must still exist: %v", err)
	}
	if sl, _ := h.slots.Get("b-10"); sl.IsAvailable {
		t.Fatal("slot must stay consumed")
	}
}

func TestUpdateKeepsSlotAndLocksLocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	appt, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	f := form("Location B", "2024-06-10", "10:00", "brow-b")
	var verr *booking.ValidationError
	if _, err := h.svc.Update(ctx, appt.ID, f, booking.Actor{Email: appt.ClientEmail}); !errors.As(err, &verr) || verr.Fields["location"] == "" {
		t.Fatalf("expected location locked, got %v", err)
	}

	f = form("Location A", "2024-06-10", "10:00", "lash-a", "brow-a")
	f.Notes = "sensitive eyes"
	showed := true
	f.ClientShowedUp = &showed
	updated, err := h.svc.Update(ctx, appt.ID, f, booking.Actor{Email: appt.ClientEmail})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.ServicePriceCents != 6500 || updated.Notes != "sensitive eyes" || updated.SlotID != "a-10" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.ClientShowedUp != nil {
		t.Fatal("clients may not set attendance")
	}

	updated, err = h.svc.Update(ctx, appt.ID, f, booking.Actor{Admin: true})
	if err != nil || updated.ClientShowedUp == nil || !*updated.ClientShowedUp {
		t.Fatalf("admin attendance not applied: %+v (%v)", updated, err)
	}
	if sl, _ := h.slots.Get("a-10"); sl.IsAvailable {
		t.Fatal("update must not touch slot availability")
	}
}

func TestUpdateMovesOnlyIntoOpenSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	f := form("Location A", "2024-06-10", "11:00", "lash-a")
	f.ClientEmail = "ana@example.com"
	second, err := h.svc.Book(ctx, f)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	client := booking.Actor{Email: second.ClientEmail}

	f.Time = "10:00"
	if _, err := h.svc.Update(ctx, second.ID, f, client); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken moving onto a booked time, got %v", err)
	}
	f.Time = "12:00"
	if _, err := h.svc.Update(ctx, second.ID, f, client); !errors.Is(err, model.ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound moving onto a time with no slot, got %v", err)
	}
	got, _ := h.ledger.Get(ctx, second.ID)
	if got.Time != "11:00" || got.SlotID != "a-11" {
		t.Fatalf("failed moves must leave the booking alone: %+v", got)
	}
	if sl, _ := h.slots.Get("a-11"); sl.IsAvailable {
		t.Fatal("held slot must stay consumed after a failed move")
	}

	if _, err := h.ledger.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	f.Time = "10:00"
	moved, err := h.svc.Update(ctx, second.ID, f, client)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if moved.Time != "10:00" || moved.SlotID != "a-10" {
		t.Fatalf("unexpected move: %+v", moved)
	}
	if sl, _ := h.slots.Get("a-10"); sl.IsAvailable {
		t.Fatal("new slot must be consumed")
	}
	if sl, _ := h.slots.Get("a-11"); !sl.IsAvailable {
		t.Fatal("old slot must be re-opened")
	}
}

func TestLookupByEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.Book(ctx, form("Location A", "2024-06-10", "10:00", "lash-a")); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	got, err := h.svc.Lookup(ctx, " maria@EXAMPLE.com")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 appointment, got %d (%v)", len(got), err)
	}
	var verr *booking.ValidationError
	if _, err := h.svc.Lookup(ctx, "nope"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for bad email, got %v", err)
	}
}
