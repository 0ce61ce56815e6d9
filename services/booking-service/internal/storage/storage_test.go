package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// openTestPool connects to TEST_DATABASE_URL, applies the schema and empties the tables.
func openTestPool(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE appointments, available_slots, services, contact_messages,
		booking_idempotency_keys, payment_events, outbox_events`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func TestValidID(t *testing.T) {
	if validID("slot-1") || validID("") {
		t.Fatal("expected non-uuid ids to be rejected")
	}
	if !validID("6f1c2b9e-8a4d-4e7a-9d59-0d4b1f0f6a11") {
		t.Fatal("expected uuid to be accepted")
	}
	if got := validIDs([]string{"x", "6f1c2b9e-8a4d-4e7a-9d59-0d4b1f0f6a11"}); len(got) != 1 {
		t.Fatalf("expected one valid id, got %v", got)
	}
}

func TestAppointmentConsumesSlot(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	slots := NewSlotRepository(pool)
	appts := NewAppointmentRepository(pool)

	slot, err := slots.Create(ctx, model.Slot{Date: "2030-06-10", Time: "10:00", Location: "Location B", IsAvailable: true})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	appt := model.Appointment{
		ServiceID: "svc", ServiceIDs: []string{"svc"}, ServiceCategories: []string{"lashes"},
		ServiceName: "Classic", ServicePriceCents: 5000,
		Date: "2030-06-10", Time: "10:00", Location: "Location B",
		ClientName: "Maria", ClientPhone: "11999998888", ClientEmail: "Maria@Example.com",
		PaymentIntentID: "pi_1",
	}
	created, err := appts.Create(ctx, appt)
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	if created.SlotID != slot.ID || created.Time != "10:00" || created.Date != "2030-06-10" {
		t.Fatalf("unexpected appointment: %+v", created)
	}

	if _, err := appts.Create(ctx, appt); !errors.Is(err, model.ErrDuplicatePayment) {
		t.Fatalf("expected ErrDuplicatePayment, got %v", err)
	}
	appt.PaymentIntentID = ""
	if _, err := appts.Create(ctx, appt); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	appt.Time = "11:00"
	if _, err := appts.Create(ctx, appt); !errors.Is(err, model.ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}

	byEmail, err := appts.ListByEmail(ctx, "maria@example.com")
	if err != nil || len(byEmail) != 1 {
		t.Fatalf("expected case-insensitive email match, got %d (%v)", len(byEmail), err)
	}

	if _, err := appts.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err := slots.ListByDate(ctx, "2030-06-10", "Location B")
	if err != nil || len(list) != 1 || !list[0].IsAvailable {
		t.Fatalf("expected slot re-opened, got %+v (%v)", list, err)
	}
	if _, err := appts.Get(ctx, created.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	slots := NewSlotRepository(pool)
	appts := NewAppointmentRepository(pool)
	if _, err := slots.Create(ctx, model.Slot{Date: "2030-06-11", Time: "09:00", Location: "Location A", IsAvailable: true}); err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := appts.Create(ctx, model.Appointment{
				ServiceID: "svc", ServiceIDs: []string{"svc"}, ServiceCategories: []string{"eyebrows"},
				ServiceName: "Brow", ServicePriceCents: 2000,
				Date: "2030-06-11", Time: "09:00", Location: "Location A",
				ClientName: "Ana", ClientPhone: "11999998888", ClientEmail: "ana@example.com",
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, model.ErrSlotTaken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestPaymentEventsDedup(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewPaymentEventRepository(pool)
	if err := repo.Record(ctx, "evt_1", "payment_intent.succeeded", []byte(`{}`)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := repo.Record(ctx, "evt_1", "payment_intent.succeeded", []byte(`{}`)); !errors.Is(err, ErrDuplicatePaymentEvent) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	seen, err := repo.Seen(ctx, "evt_1")
	if err != nil || !seen {
		t.Fatalf("expected seen, got %v (%v)", seen, err)
	}
}

func TestRescheduleMovesSlotAndGuardsHeldSlots(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	slots := NewSlotRepository(pool)
	appts := NewAppointmentRepository(pool)

	created, err := slots.CreateMany(ctx, []model.Slot{
		{Date: "2030-06-12", Time: "10:00", Location: "Location A", IsAvailable: true},
		{Date: "2030-06-12", Time: "11:00", Location: "Location A", IsAvailable: true},
	})
	if err != nil {
		t.Fatalf("create slots: %v", err)
	}
	ten, eleven := created[0], created[1]
	book := func(clock, email string) model.Appointment {
		t.Helper()
		a, err := appts.Create(ctx, model.Appointment{
			ServiceID: "svc", ServiceIDs: []string{"svc"}, ServiceCategories: []string{"eyebrows"},
			ServiceName: "Brow", ServicePriceCents: 2000,
			Date: "2030-06-12", Time: clock, Location: "Location A",
			ClientName: "Ana", ClientPhone: "11999998888", ClientEmail: email,
		})
		if err != nil {
			t.Fatalf("create appointment: %v", err)
		}
		return a
	}
	first := book("10:00", "ana@example.com")
	second := book("11:00", "bia@example.com")

	if err := slots.SetAvailability(ctx, eleven.ID, true); !errors.Is(err, model.ErrSlotHeld) {
		t.Fatalf("expected ErrSlotHeld, got %v", err)
	}

	move := second
	move.Time = "10:00"
	if _, err := appts.Reschedule(ctx, move); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	move.Time = "12:00"
	if _, err := appts.Reschedule(ctx, move); !errors.Is(err, model.ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}

	if _, err := appts.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	move.Time = "10:00"
	moved, err := appts.Reschedule(ctx, move)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.SlotID != ten.ID || moved.Time != "10:00" {
		t.Fatalf("unexpected reschedule: %+v", moved)
	}
	list, err := slots.ListByDate(ctx, "2030-06-12", "Location A")
	if err != nil {
		t.Fatal(err)
	}
	for _, sl := range list {
		if want := sl.ID == eleven.ID; sl.IsAvailable != want {
			t.Fatalf("slot %s at %s: available=%v", sl.ID, sl.Time, sl.IsAvailable)
		}
	}
	if err := slots.SetAvailability(ctx, eleven.ID, false); err != nil {
		t.Fatalf("closing a free slot: %v", err)
	}
}
