package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/booking"
)

// MemoryStore is the single-instance PendingStore used when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	items    map[string]memoryEntry
	sessions map[string]string
}

type memoryEntry struct {
	p       booking.PendingBooking
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		items:    map[string]memoryEntry{},
		sessions: map[string]string{},
	}
}

// WithClock replaces the clock used for expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Save(_ context.Context, p booking.PendingBooking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.ID] = memoryEntry{p: p, expires: s.now().Add(s.ttl)}
	if p.SessionID != "" {
		s.sessions[p.SessionID] = p.ID
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (booking.PendingBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *MemoryStore) BySession(_ context.Context, sessionID string) (booking.PendingBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[sessionID]
	if !ok {
		return booking.PendingBooking{}, booking.ErrPendingNotFound
	}
	return s.getLocked(id)
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return booking.ErrPendingNotFound
	}
	delete(s.items, id)
	if s.sessions[e.p.SessionID] == id {
		delete(s.sessions, e.p.SessionID)
	}
	return nil
}

func (s *MemoryStore) OlderThan(_ context.Context, cutoff time.Time, limit int) ([]booking.PendingBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.PendingBooking
	for id := range s.items {
		p, err := s.getLocked(id)
		if err != nil {
			continue
		}
		if !p.CreatedAt.After(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) getLocked(id string) (booking.PendingBooking, error) {
	e, ok := s.items[id]
	if !ok {
		return booking.PendingBooking{}, booking.ErrPendingNotFound
	}
	if s.now().After(e.expires) {
		delete(s.items, id)
		if s.sessions[e.p.SessionID] == id {
			delete(s.sessions, e.p.SessionID)
		}
		return booking.PendingBooking{}, booking.ErrPendingNotFound
	}
	return e.p, nil
}
