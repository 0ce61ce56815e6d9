package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/policy"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
)

type Repository interface {
	List(ctx context.Context, location string) ([]model.Service, error)
	Get(ctx context.Context, id string) (model.Service, error)
	GetMany(ctx context.Context, ids []string) ([]model.Service, error)
	Create(ctx context.Context, s model.Service) (model.Service, error)
	Update(ctx context.Context, s model.Service) (model.Service, error)
	Delete(ctx context.Context, id string) error
}

// Input is the admin create/update payload.
type Input struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Location    string `json:"location" validate:"required"`
	Category    string `json:"category" validate:"required,max=60"`
	PriceCents  int64  `json:"price_cents" validate:"gt=0"`
}

type Group struct {
	Category string          `json:"category"`
	Services []model.Service `json:"services"`
}

type Service struct {
	repo     Repository
	policy   policy.Policy
	validate *validation.Validator
}

func NewService(repo Repository, p policy.Policy, v *validation.Validator) *Service {
	return &Service{repo: repo, policy: p, validate: v}
}

func (s *Service) List(ctx context.Context, location string) ([]model.Service, error) {
	return s.repo.List(ctx, strings.TrimSpace(location))
}

func (s *Service) Get(ctx context.Context, id string) (model.Service, error) {
	return s.repo.Get(ctx, id)
}

// Resolve loads every id, failing with model.ErrNotFound when any is missing.
// The result keeps the order of ids.
func (s *Service) Resolve(ctx context.Context, ids []string) ([]model.Service, error) {
	found, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Service, len(found))
	for _, svc := range found {
		byID[svc.ID] = svc
	}
	out := make([]model.Service, 0, len(ids))
	for _, id := range ids {
		svc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("service %s: %w", id, model.ErrNotFound)
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, in Input) (model.Service, error) {
	in = normalize(in)
	if err := s.check(in); err != nil {
		return model.Service{}, err
	}
	return s.repo.Create(ctx, model.Service{
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		Category:    in.Category,
		PriceCents:  in.PriceCents,
	})
}

func (s *Service) Update(ctx context.Context, id string, in Input) (model.Service, error) {
	in = normalize(in)
	if err := s.check(in); err != nil {
		return model.Service{}, err
	}
	return s.repo.Update(ctx, model.Service{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
		Category:    in.Category,
		PriceCents:  in.PriceCents,
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Grouped returns the services offered at location grouped by category.
// Categories follow the configured preference order, then alphabetical;
// services inside a group are sorted by name.
func (s *Service) Grouped(ctx context.Context, location string) ([]Group, error) {
	services, err := s.List(ctx, location)
	if err != nil {
		return nil, err
	}
	return GroupByCategory(services, s.policy.CategoryOrder), nil
}

func GroupByCategory(services []model.Service, order []string) []Group {
	idx := map[string]int{}
	var groups []Group
	for _, svc := range services {
		i, ok := idx[svc.Category]
		if !ok {
			i = len(groups)
			idx[svc.Category] = i
			groups = append(groups, Group{Category: svc.Category})
		}
		groups[i].Services = append(groups[i].Services, svc)
	}

	rank := make(map[string]int, len(order))
	for i, c := range order {
		rank[strings.ToLower(c)] = i
	}
	sort.SliceStable(groups, func(a, b int) bool {
		ra, okA := rank[strings.ToLower(groups[a].Category)]
		rb, okB := rank[strings.ToLower(groups[b].Category)]
		switch {
		case okA && okB:
			return ra < rb
		case okA != okB:
			return okA
		default:
			return groups[a].Category < groups[b].Category
		}
	})
	for _, g := range groups {
		sort.SliceStable(g.Services, func(a, b int) bool {
			return g.Services[a].Name < g.Services[b].Name
		})
	}
	return groups
}

func (s *Service) check(in Input) error {
	verr := &validation.Error{}
	if err := s.validate.Merge(verr, in); err != nil {
		return err
	}
	if in.Location != "" && !s.policy.KnownLocation(in.Location) {
		verr.Add("location", "must be one of: "+strings.Join(s.policy.Locations, ", "))
	}
	return verr.OrNil()
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	return in
}
