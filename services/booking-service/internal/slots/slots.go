package slots

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/availability"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/policy"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
)

type Repository interface {
	ListByDate(ctx context.Context, date, location string) ([]model.Slot, error)
	Create(ctx context.Context, s model.Slot) (model.Slot, error)
	CreateMany(ctx context.Context, slots []model.Slot) ([]model.Slot, error)
	SetAvailability(ctx context.Context, id string, available bool) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int, error)
	DeleteForDate(ctx context.Context, date, location string, onlyAvailable bool) (int, error)
}

type CreateInput struct {
	Date        string `json:"date" validate:"required,date"`
	Time        string `json:"time" validate:"required,hhmm"`
	Location    string `json:"location" validate:"required"`
	IsAvailable *bool  `json:"is_available,omitempty"`
}

// BatchInput stamps out hourly slots between Start and End. SkipFrom/SkipTo
// default to the studio lunch window; NoSkip disables it.
type BatchInput struct {
	Date     string `json:"date" validate:"required,date"`
	Location string `json:"location" validate:"required"`
	Start    string `json:"start" validate:"required,hhmm"`
	End      string `json:"end" validate:"required,hhmm"`
	SkipFrom string `json:"skip_from,omitempty" validate:"omitempty,hhmm"`
	SkipTo   string `json:"skip_to,omitempty" validate:"omitempty,hhmm"`
	NoSkip   bool   `json:"no_skip,omitempty"`
}

type Service struct {
	repo     Repository
	policy   policy.Policy
	validate *validation.Validator
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, p policy.Policy, v *validation.Validator, logger *slog.Logger) *Service {
	return &Service{repo: repo, policy: p, validate: v, logger: logger, now: time.Now}
}

// ListSlots returns every slot on date, optionally restricted to one location.
func (s *Service) ListSlots(ctx context.Context, date, location string) ([]model.Slot, error) {
	location = strings.TrimSpace(location)
	if err := s.checkDateLocation(date, location, false); err != nil {
		return nil, err
	}
	return s.repo.ListByDate(ctx, date, location)
}

// OpenTimes lists bookable times on date honouring the minimum lead time.
func (s *Service) OpenTimes(ctx context.Context, date, location string) ([]string, error) {
	all, err := s.ListSlots(ctx, date, location)
	if err != nil {
		return nil, err
	}
	return availability.OpenTimes(all, date, s.policy.Now(s.now()), s.policy.LeadTime), nil
}

// Status reports whether any slot matches (date, clock, location) and whether one is open.
func (s *Service) Status(ctx context.Context, date, clock, location string) (exists bool, open bool, err error) {
	all, err := s.repo.ListByDate(ctx, date, location)
	if err != nil {
		return false, false, err
	}
	for _, sl := range all {
		if sl.Time != clock {
			continue
		}
		exists = true
		if sl.IsAvailable {
			return true, true, nil
		}
	}
	return exists, false, nil
}

func (s *Service) CreateSlot(ctx context.Context, in CreateInput) (model.Slot, error) {
	in.Location = strings.TrimSpace(in.Location)
	verr := &validation.Error{}
	if err := s.validate.Merge(verr, in); err != nil {
		return model.Slot{}, err
	}
	s.checkLocation(verr, in.Location)
	if err := verr.OrNil(); err != nil {
		return model.Slot{}, err
	}
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	return s.repo.Create(ctx, model.Slot{Date: in.Date, Time: in.Time, Location: in.Location, IsAvailable: available})
}

// CreateBatch creates one open slot per hour in [Start, End]. No duplicate check is made.
func (s *Service) CreateBatch(ctx context.Context, in BatchInput) ([]model.Slot, error) {
	in.Location = strings.TrimSpace(in.Location)
	verr := &validation.Error{}
	if err := s.validate.Merge(verr, in); err != nil {
		return nil, err
	}
	s.checkLocation(verr, in.Location)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	skipFrom, skipTo := s.policy.SkipFrom, s.policy.SkipTo
	if in.SkipFrom != "" || in.SkipTo != "" {
		skipFrom, skipTo = in.SkipFrom, in.SkipTo
	}
	if in.NoSkip {
		skipFrom, skipTo = "", ""
	}
	times, err := availability.HourlyTimes(in.Start, in.End, skipFrom, skipTo)
	if err != nil {
		return nil, validation.Single("end", err.Error())
	}
	batch := make([]model.Slot, 0, len(times))
	for _, t := range times {
		batch = append(batch, model.Slot{Date: in.Date, Time: t, Location: in.Location, IsAvailable: true})
	}
	return s.repo.CreateMany(ctx, batch)
}

// SetAvailability opens or closes a slot. Re-opening a slot an appointment
// still holds fails with model.ErrSlotHeld.
func (s *Service) SetAvailability(ctx context.Context, id string, available bool) error {
	return s.repo.SetAvailability(ctx, id, available)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// DeleteForDate bulk-deletes a date's slots. With onlyAvailable, booked slots are kept.
func (s *Service) DeleteForDate(ctx context.Context, date, location string, onlyAvailable bool) (int, error) {
	location = strings.TrimSpace(location)
	if err := s.checkDateLocation(date, location, false); err != nil {
		return 0, err
	}
	return s.repo.DeleteForDate(ctx, date, location, onlyAvailable)
}

// AdminList purges slots that started more than the grace period ago, then lists the date.
// A failed purge is logged and the listing is still served.
func (s *Service) AdminList(ctx context.Context, date, location string) ([]model.Slot, error) {
	all, err := s.ListSlots(ctx, date, location)
	if err != nil {
		return nil, err
	}
	expired := availability.ExpiredIDs(all, s.policy.Now(s.now()), s.policy.PurgeGrace)
	if len(expired) == 0 {
		return all, nil
	}
	n, err := s.repo.DeleteMany(ctx, expired)
	if err != nil {
		s.logger.Warn("expired slot purge failed", "date", date, "location", location, "err", err)
		return all, nil
	}
	s.logger.Info("expired slots purged", "date", date, "location", location, "count", n)

	drop := make(map[string]struct{}, len(expired))
	for _, id := range expired {
		drop[id] = struct{}{}
	}
	kept := make([]model.Slot, 0, len(all))
	for _, sl := range all {
		if _, ok := drop[sl.ID]; !ok {
			kept = append(kept, sl)
		}
	}
	return kept, nil
}

func (s *Service) checkDateLocation(date, location string, locationRequired bool) error {
	verr := &validation.Error{}
	if _, err := time.Parse(availability.DateLayout, date); err != nil {
		verr.Add("date", "must be a date formatted YYYY-MM-DD")
	}
	if location == "" {
		if locationRequired {
			verr.Add("location", "is required")
		}
	} else {
		s.checkLocation(verr, location)
	}
	return verr.OrNil()
}

func (s *Service) checkLocation(verr *validation.Error, location string) {
	if location != "" && !s.policy.KnownLocation(location) {
		verr.Add("location", "must be one of: "+strings.Join(s.policy.Locations, ", "))
	}
}
