package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Services is an in-process catalog.Repository.
type Services struct {
	mu    sync.Mutex
	next  int
	items map[string]model.Service
	order []string
}

func NewServices(seed ...model.Service) *Services {
	r := &Services{items: map[string]model.Service{}}
	for _, s := range seed {
		_, _ = r.Create(context.Background(), s)
	}
	return r
}

func (r *Services) List(_ context.Context, location string) ([]model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Service{}
	for _, id := range r.order {
		s := r.items[id]
		if location == "" || s.Location == location {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Services) Get(_ context.Context, id string) (model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return model.Service{}, model.ErrNotFound
	}
	return s, nil
}

func (r *Services) GetMany(_ context.Context, ids []string) ([]model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Service
	for _, id := range ids {
		if s, ok := r.items[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Services) Create(_ context.Context, s model.Service) (model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.next++
		s.ID = "svc-" + strconv.Itoa(r.next)
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	r.items[s.ID] = s
	r.order = append(r.order, s.ID)
	return s, nil
}

func (r *Services) Update(_ context.Context, s model.Service) (model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.items[s.ID]
	if !ok {
		return model.Service{}, model.ErrNotFound
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	r.items[s.ID] = s
	return s, nil
}

func (r *Services) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return model.ErrNotFound
	}
	delete(r.items, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
