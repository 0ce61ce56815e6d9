package booking

import (
	"slices"
	"strings"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Selection is the client's in-progress service pick: at most Max services,
// one per category.
type Selection struct {
	Max      int
	services []model.Service
}

func NewSelection(max int) *Selection {
	if max <= 0 {
		max = 3
	}
	return &Selection{Max: max}
}

// Add appends svc. On ErrSelectionLimit or ErrCategoryTaken the selection is unchanged.
func (s *Selection) Add(svc model.Service) error {
	for _, existing := range s.services {
		if existing.ID == svc.ID {
			return nil
		}
	}
	if len(s.services) >= s.Max {
		return ErrSelectionLimit
	}
	for _, existing := range s.services {
		if strings.EqualFold(existing.Category, svc.Category) {
			return ErrCategoryTaken
		}
	}
	s.services = append(s.services, svc)
	return nil
}

func (s *Selection) Remove(id string) {
	s.services = slices.DeleteFunc(s.services, func(svc model.Service) bool { return svc.ID == id })
}

func (s *Selection) Services() []model.Service {
	return slices.Clone(s.services)
}

func (s *Selection) IDs() []string {
	ids := make([]string, 0, len(s.services))
	for _, svc := range s.services {
		ids = append(ids, svc.ID)
	}
	return ids
}
