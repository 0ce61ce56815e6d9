package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Appointments is an in-process booking.Ledger backed by a Slots store.
type Appointments struct {
	slots *Slots

	mu    sync.Mutex
	next  int
	items map[string]model.Appointment
}

func NewAppointments(slots *Slots) *Appointments {
	a := &Appointments{slots: slots, items: map[string]model.Appointment{}}
	slots.mu.Lock()
	slots.held = a.holds
	slots.mu.Unlock()
	return a
}

// holds reports whether an appointment references the slot. Callers hold slots.mu.
func (a *Appointments) holds(slotID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, appt := range a.items {
		if appt.SlotID == slotID {
			return true
		}
	}
	return false
}

// Create consumes the first open slot matching the appointment's date, time and location.
func (a *Appointments) Create(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	a.slots.mu.Lock()
	defer a.slots.mu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	if appt.PaymentIntentID != "" {
		for _, existing := range a.items {
			if existing.PaymentIntentID == appt.PaymentIntentID {
				return model.Appointment{}, model.ErrDuplicatePayment
			}
		}
	}

	slotID, err := a.slots.claimLocked(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.next++
	appt.ID = "appt-" + strconv.Itoa(a.next)
	appt.SlotID = slotID
	appt.CreatedAt = time.Now().UTC()
	a.items[appt.ID] = appt
	return appt, nil
}

func (a *Appointments) Get(_ context.Context, id string) (model.Appointment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	appt, ok := a.items[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

func (a *Appointments) FindByPaymentIntent(_ context.Context, intentID string) (model.Appointment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, appt := range a.items {
		if intentID != "" && appt.PaymentIntentID == intentID {
			return appt, nil
		}
	}
	return model.Appointment{}, model.ErrNotFound
}

func (a *Appointments) ListByEmail(_ context.Context, email string) ([]model.Appointment, error) {
	return a.collect(func(appt model.Appointment) bool {
		return strings.EqualFold(appt.ClientEmail, email)
	}, 0), nil
}

func (a *Appointments) List(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return a.collect(func(appt model.Appointment) bool {
		switch {
		case f.Date != "" && appt.Date != f.Date:
			return false
		case f.From != "" && appt.Date < f.From:
			return false
		case f.To != "" && appt.Date > f.To:
			return false
		case f.Location != "" && appt.Location != f.Location:
			return false
		}
		return true
	}, f.Limit), nil
}

func (a *Appointments) Update(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	old, ok := a.items[appt.ID]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	appt.SlotID = old.SlotID
	appt.CreatedAt = old.CreatedAt
	appt.PaymentIntentID = old.PaymentIntentID
	now := time.Now().UTC()
	appt.UpdatedAt = &now
	a.items[appt.ID] = appt
	return appt, nil
}

// Reschedule moves the appointment onto the open slot matching its new date and
// time and re-opens the slot it held.
func (a *Appointments) Reschedule(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	a.slots.mu.Lock()
	defer a.slots.mu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	old, ok := a.items[appt.ID]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	slotID, err := a.slots.claimLocked(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	if i := a.slots.indexLocked(old.SlotID); i >= 0 {
		a.slots.items[i].IsAvailable = true
	}
	appt.SlotID = slotID
	appt.CreatedAt = old.CreatedAt
	appt.PaymentIntentID = old.PaymentIntentID
	now := time.Now().UTC()
	appt.UpdatedAt = &now
	a.items[appt.ID] = appt
	return appt, nil
}

// Delete removes the appointment and re-opens its slot.
func (a *Appointments) Delete(_ context.Context, id string) (model.Appointment, error) {
	a.slots.mu.Lock()
	defer a.slots.mu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	appt, ok := a.items[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	delete(a.items, id)
	if i := a.slots.indexLocked(appt.SlotID); i >= 0 {
		a.slots.items[i].IsAvailable = true
	}
	return appt, nil
}

// Count is a test helper.
func (a *Appointments) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

func (a *Appointments) collect(keep func(model.Appointment) bool, limit int) []model.Appointment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []model.Appointment{}
	for _, appt := range a.items {
		if keep(appt) {
			out = append(out, appt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
