package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Slots is an in-process slots.Repository. Appointments shares its lock so slot
// consumption is atomic, matching the SQL implementation.
type Slots struct {
	mu    sync.Mutex
	next  int
	items []model.Slot
	held  func(id string) bool
}

func NewSlots(seed ...model.Slot) *Slots {
	s := &Slots{}
	_, _ = s.CreateMany(context.Background(), seed)
	return s
}

func (s *Slots) ListByDate(_ context.Context, date, location string) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Slot{}
	for _, sl := range s.items {
		if sl.Date == date && (location == "" || sl.Location == location) {
			out = append(out, sl)
		}
	}
	return out, nil
}

func (s *Slots) Create(_ context.Context, sl model.Slot) (model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(sl), nil
}

func (s *Slots) CreateMany(_ context.Context, in []model.Slot) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Slot, 0, len(in))
	for _, sl := range in {
		out = append(out, s.insertLocked(sl))
	}
	return out, nil
}

func (s *Slots) SetAvailability(_ context.Context, id string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.ErrNotFound
	}
	if available && s.held != nil && s.held(id) {
		return model.ErrSlotHeld
	}
	s.items[i].IsAvailable = available
	return nil
}

func (s *Slots) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Slots) DeleteMany(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]struct{}{}
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return s.filterLocked(func(sl model.Slot) bool {
		_, ok := drop[sl.ID]
		return ok
	}), nil
}

func (s *Slots) DeleteForDate(_ context.Context, date, location string, onlyAvailable bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(func(sl model.Slot) bool {
		if sl.Date != date || (location != "" && sl.Location != location) {
			return false
		}
		return !onlyAvailable || sl.IsAvailable
	}), nil
}

// Get is a test helper.
func (s *Slots) Get(id string) (model.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Slot{}, false
	}
	return s.items[i], true
}

func (s *Slots) insertLocked(sl model.Slot) model.Slot {
	if sl.ID == "" {
		s.next++
		sl.ID = "slot-" + strconv.Itoa(s.next)
	}
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = time.Now().UTC()
	}
	s.items = append(s.items, sl)
	return sl
}

// claimLocked closes the first open slot matching appt's date, time and location.
func (s *Slots) claimLocked(appt model.Appointment) (string, error) {
	matched := false
	for i, sl := range s.items {
		if sl.Date != appt.Date || sl.Time != appt.Time || sl.Location != appt.Location {
			continue
		}
		matched = true
		if sl.IsAvailable {
			s.items[i].IsAvailable = false
			return sl.ID, nil
		}
	}
	if matched {
		return "", model.ErrSlotTaken
	}
	return "", model.ErrSlotNotFound
}

func (s *Slots) indexLocked(id string) int {
	for i, sl := range s.items {
		if sl.ID == id {
			return i
		}
	}
	return -1
}

func (s *Slots) filterLocked(drop func(model.Slot) bool) int {
	kept := s.items[:0]
	n := 0
	for _, sl := range s.items {
		if drop(sl) {
			n++
			continue
		}
		kept = append(kept, sl)
	}
	s.items = kept
	return n
}
