package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Contacts is an in-process contact.Repository.
type Contacts struct {
	mu    sync.Mutex
	next  int
	now   func() time.Time
	items map[string]model.ContactMessage
}

func NewContacts() *Contacts {
	return &Contacts{items: map[string]model.ContactMessage{}, now: time.Now}
}

func (c *Contacts) Create(_ context.Context, m model.ContactMessage) (model.ContactMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	m.ID = "msg-" + strconv.Itoa(c.next)
	// Strictly increasing timestamps keep newest-first ordering deterministic.
	m.CreatedAt = c.now().UTC().Add(time.Duration(c.next) * time.Millisecond)
	c.items[m.ID] = m
	return m, nil
}

func (c *Contacts) Get(_ context.Context, id string) (model.ContactMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.items[id]
	if !ok {
		return model.ContactMessage{}, model.ErrNotFound
	}
	return m, nil
}

func (c *Contacts) List(_ context.Context, onlyRated bool, limit int) ([]model.ContactMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []model.ContactMessage{}
	for _, m := range c.items {
		if onlyRated && m.Rating <= 0 {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Contacts) Update(_ context.Context, m model.ContactMessage) (model.ContactMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.items[m.ID]
	if !ok {
		return model.ContactMessage{}, model.ErrNotFound
	}
	m.CreatedAt = old.CreatedAt
	c.items[m.ID] = m
	return m, nil
}

func (c *Contacts) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return model.ErrNotFound
	}
	delete(c.items, id)
	return nil
}
