package booking_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/catalog"
	"github.com/lunalash/studio/services/booking-service/internal/memstore"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/payments"
	"github.com/lunalash/studio/services/booking-service/internal/pending"
	"github.com/lunalash/studio/services/booking-service/internal/policy"
	"github.com/lunalash/studio/services/booking-service/internal/slots"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
)

type fakeGateway struct {
	mu        sync.Mutex
	n         int
	intents   map[string]payments.Intent
	requests  []payments.IntentRequest
	cancelled []string
	refunded  []string
	createErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]payments.Intent{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	g.n++
	id := "pi_" + strconv.Itoa(g.n)
	in := payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Metadata:     req.Metadata,
	}
	g.intents[id] = in
	g.requests = append(g.requests, req)
	return in, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, id string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return payments.Intent{}, errors.New("no such intent")
	}
	return in, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	in := g.intents[id]
	in.Status = "canceled"
	g.intents[id] = in
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunded = append(g.refunded, id)
	return nil
}

func (g *fakeGateway) setStatus(id, status, lastErr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in := g.intents[id]
	in.Status = status
	in.LastError = lastErr
	g.intents[id] = in
}

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []model.Appointment
	cancelled []model.Appointment
	refunded  []booking.PendingBooking
	err       error
}

func (n *fakeNotifier) AppointmentConfirmed(_ context.Context, appt model.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, appt)
	return n.err
}

func (n *fakeNotifier) AppointmentCancelled(_ context.Context, appt model.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, appt)
	return n.err
}

func (n *fakeNotifier) DepositRefunded(_ context.Context, p booking.PendingBooking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunded = append(n.refunded, p)
	return n.err
}

type harness struct {
	svc      *booking.Service
	slots    *memstore.Slots
	ledger   *memstore.Appointments
	pending  *pending.MemoryStore
	gateway  *fakeGateway
	notifier *fakeNotifier
	slotSvc  *slots.Service
	now      time.Time
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testNowPlus(hours int) time.Time {
	return testNow.Add(time.Duration(hours) * time.Hour)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := policy.Default()
	p.Timezone = time.UTC
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validation.New()

	services := memstore.NewServices(
		model.Service{ID: "lash-b", Name: "Volume Lashes", Location: "Location B", Category: "lashes", PriceCents: 5000},
		model.Service{ID: "brow-b", Name: "Brow Design", Location: "Location B", Category: "eyebrows", PriceCents: 2500},
		model.Service{ID: "wax-b", Name: "Leg Wax", Location: "Location B", Category: "hair-removal", PriceCents: 4000},
		model.Service{ID: "lash-a", Name: "Classic Lashes", Location: "Location A", Category: "lashes", PriceCents: 4500},
		model.Service{ID: "brow-a", Name: "Brow Tint", Location: "Location A", Category: "eyebrows", PriceCents: 2000},
		model.Service{ID: "free-a", Name: "Consultation", Location: "Location A", Category: "other", PriceCents: 0},
	)
	slotRepo := memstore.NewSlots(
		model.Slot{ID: "b-10", Date: "2024-06-10", Time: "10:00", Location: "Location B", IsAvailable: true},
		model.Slot{ID: "b-11", Date: "2024-06-10", Time: "11:00", Location: "Location B", IsAvailable: true},
		model.Slot{ID: "a-10", Date: "2024-06-10", Time: "10:00", Location: "Location A", IsAvailable: true},
		model.Slot{ID: "a-11", Date: "2024-06-10", Time: "11:00", Location: "Location A", IsAvailable: true},
	)
	ledger := memstore.NewAppointments(slotRepo)
	h := &harness{now: testNow}
	// Kept past PendingTTL the way main sizes it, so Reconcile sees expired deposits.
	store := pending.NewMemoryStore(p.PendingTTL + time.Hour).WithClock(func() time.Time { return h.now })
	gw := newFakeGateway()
	notifier := &fakeNotifier{}
	slotSvc := slots.NewService(slotRepo, p, v, logger)

	h.slots = slotRepo
	h.ledger = ledger
	h.pending = store
	h.gateway = gw
	h.notifier = notifier
	h.slotSvc = slotSvc
	ids := 0
	h.svc = booking.NewService(booking.Deps{
		Catalog:  catalog.NewService(services, p, v),
		Ledger:   ledger,
		Slots:    slotSvc,
		Pending:  store,
		Payments: gw,
		Notifier: notifier,
		Policy:   p,
		Validate: v,
		Logger:   logger,
		Now:      func() time.Time { return h.now },
		NewID: func() string {
			ids++
			return "pending-" + strconv.Itoa(ids)
		},
	})
	return h
}

func form(location, date, clock string, serviceIDs ...string) booking.Form {
	return booking.Form{
		Location:    location,
		ServiceIDs:  serviceIDs,
		Date:        date,
		Time:        clock,
		ClientName:  "Maria Silva",
		ClientPhone: "(11) 98765-4321",
		ClientEmail: "Maria@Example.com",
		IsFirstTime: true,
	}
}
