package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/lunalash/studio/libs/otel"
	"github.com/lunalash/studio/services/booking-service/internal/availability"
	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/payments"
	"github.com/lunalash/studio/services/booking-service/internal/policy"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "booking"

// Catalog resolves selected service ids, preserving their order.
type Catalog interface {
	Resolve(ctx context.Context, ids []string) ([]model.Service, error)
}

// Ledger persists appointments. Create must consume the matching slot atomically
// and fail with model.ErrSlotTaken or model.ErrSlotNotFound; Delete re-opens it.
// Reschedule claims the slot for the new date and time the same way and
// re-opens the old one in the same step.
type Ledger interface {
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (model.Appointment, error)
	ListByEmail(ctx context.Context, email string) ([]model.Appointment, error)
	List(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
	Update(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Reschedule(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Delete(ctx context.Context, id string) (model.Appointment, error)
}

type SlotFinder interface {
	Status(ctx context.Context, date, clock, location string) (exists bool, open bool, err error)
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
	GetIntent(ctx context.Context, id string) (payments.Intent, error)
	CancelIntent(ctx context.Context, id string) error
	Refund(ctx context.Context, intentID string) error
}

// Notifier announces booking changes to the studio. Failures are logged only.
type Notifier interface {
	AppointmentConfirmed(ctx context.Context, appt model.Appointment) error
	AppointmentCancelled(ctx context.Context, appt model.Appointment) error
	DepositRefunded(ctx context.Context, p PendingBooking) error
}

// Actor identifies who edits or cancels. Clients are matched by email only.
type Actor struct {
	Admin bool
	Email string
}

type Deps struct {
	Catalog  Catalog
	Ledger   Ledger
	Slots    SlotFinder
	Pending  PendingStore
	Payments PaymentGateway
	Notifier Notifier
	Policy   policy.Policy
	Validate *validation.Validator
	Logger   *slog.Logger

	// Optional overrides for clocks and pending ids.
	Now   func() time.Time
	NewID func() string
}

type Service struct {
	catalog  Catalog
	ledger   Ledger
	slots    SlotFinder
	pending  PendingStore
	payments PaymentGateway
	notifier Notifier
	policy   policy.Policy
	validate *validation.Validator
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(d Deps) *Service {
	v := d.Validate
	if v == nil {
		v = validation.New()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	newID := d.NewID
	if newID == nil {
		newID = newPendingID
	}
	return &Service{
		catalog:  d.Catalog,
		ledger:   d.Ledger,
		slots:    d.Slots,
		pending:  d.Pending,
		payments: d.Payments,
		notifier: d.Notifier,
		policy:   d.Policy,
		validate: v,
		logger:   logger,
		now:      now,
		newID:    newID,
	}
}

// Validate checks the whole form at once and resolves the selected services.
func (s *Service) Validate(ctx context.Context, f Form) ([]model.Service, error) {
	f = f.normalized()
	verr := &ValidationError{}
	if err := s.validate.Merge(verr, f); err != nil {
		return nil, err
	}
	if f.Location != "" && !s.policy.KnownLocation(f.Location) {
		verr.Add("location", "must be one of: "+strings.Join(s.policy.Locations, ", "))
	}
	if len(f.ServiceIDs) > s.policy.MaxServices {
		verr.Add("service_ids", fmt.Sprintf("must contain at most %d item(s)", s.policy.MaxServices))
	}

	var services []model.Service
	if _, bad := verr.Fields["service_ids"]; !bad && len(f.ServiceIDs) > 0 {
		resolved, err := s.catalog.Resolve(ctx, f.ServiceIDs)
		switch {
		case errors.Is(err, model.ErrNotFound):
			verr.Add("service_ids", "contains an unknown service")
		case err != nil:
			return nil, err
		default:
			services = resolved
			checkServices(verr, services, f.Location)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return services, nil
}

func checkServices(verr *ValidationError, services []model.Service, location string) {
	seen := map[string]bool{}
	for _, svc := range services {
		if location != "" && svc.Location != location {
			verr.Add("service_ids", fmt.Sprintf("%s is not offered at %s", svc.Name, location))
			return
		}
		cat := strings.ToLower(svc.Category)
		if seen[cat] {
			verr.Add("service_ids", "only one service per category may be selected")
			return
		}
		seen[cat] = true
	}
}

func (s *Service) quote(services []model.Service, location string) Quote {
	name, categories, total := summarize(services)
	ids := make([]string, 0, len(services))
	for _, svc := range services {
		ids = append(ids, svc.ID)
	}
	required := s.policy.DepositRequired(categories, location)
	q := Quote{
		ServiceIDs:        ids,
		ServiceName:       name,
		ServiceCategories: categories,
		TotalCents:        total,
		DepositRequired:   required,
		BalanceCents:      s.policy.BalanceCents(total, required),
		Currency:          s.policy.Currency,
	}
	if required {
		q.DepositCents = s.policy.DepositCents
	}
	return q
}

// Quote prices a form without booking anything.
func (s *Service) Quote(ctx context.Context, f Form) (Quote, error) {
	f = f.normalized()
	services, err := s.Validate(ctx, f)
	if err != nil {
		return Quote{}, err
	}
	return s.quote(services, f.Location), nil
}

// prepare validates f for a new booking and returns its quote.
func (s *Service) prepare(ctx context.Context, f Form) (Form, Quote, error) {
	f = f.normalized()
	services, err := s.Validate(ctx, f)
	if err != nil {
		return f, Quote{}, err
	}
	q := s.quote(services, f.Location)
	if q.TotalCents <= 0 {
		return f, Quote{}, validation.Single("service_ids", "total price must be greater than zero")
	}
	if !availability.MeetsLeadTime(f.Date, f.Time, s.policy.Now(s.now()), s.policy.LeadTime) {
		return f, Quote{}, validation.Single("time", fmt.Sprintf("must be at least %s from now", s.policy.LeadTime))
	}
	return f, q, nil
}

// Book creates an appointment for a form that needs no deposit.
func (s *Service) Book(ctx context.Context, f Form) (model.Appointment, error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.Book")
	var err error
	defer func() { otelx.EndSpan(span, err) }()

	f, q, err := s.prepare(ctx, f)
	if err != nil {
		return model.Appointment{}, err
	}
	span.SetAttributes(attribute.String("booking.location", f.Location), attribute.String("booking.date", f.Date))
	if q.DepositRequired {
		err = &DepositRequiredError{AmountCents: q.DepositCents, Currency: q.Currency}
		return model.Appointment{}, err
	}

	appt, err := s.ledger.Create(ctx, newAppointment(f, q))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "date", appt.Date, "time", appt.Time, "location", appt.Location)
	s.notifyConfirmed(ctx, appt)
	return appt, nil
}

func newAppointment(f Form, q Quote) model.Appointment {
	return model.Appointment{
		ServiceID:         q.ServiceIDs[0],
		ServiceIDs:        q.ServiceIDs,
		ServiceCategories: q.ServiceCategories,
		ServiceName:       q.ServiceName,
		ServicePriceCents: q.TotalCents,
		Date:              f.Date,
		Time:              f.Time,
		Location:          f.Location,
		ClientName:        f.ClientName,
		ClientPhone:       f.ClientPhone,
		ClientEmail:       f.ClientEmail,
		IsFirstTime:       f.IsFirstTime,
		Notes:             f.Notes,
	}
}

// load fetches id and applies the client email check; a mismatch looks like NotFound.
func (s *Service) load(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !actor.Admin && !strings.EqualFold(strings.TrimSpace(actor.Email), appt.ClientEmail) {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, nil
}

// Update re-validates an existing booking. The location is locked. Moving the
// date or time claims the matching open slot and frees the old one, failing
// with model.ErrSlotTaken or model.ErrSlotNotFound like Create.
func (s *Service) Update(ctx context.Context, id string, f Form, actor Actor) (model.Appointment, error) {
	existing, err := s.load(ctx, id, actor)
	if err != nil {
		return model.Appointment{}, err
	}
	f = f.normalized()
	services, err := s.Validate(ctx, f)
	var verr *ValidationError
	if err != nil && !errors.As(err, &verr) {
		return model.Appointment{}, err
	}
	if verr == nil {
		verr = &ValidationError{}
	}
	if f.Location != "" && f.Location != existing.Location {
		verr.Add("location", "cannot be changed on an existing booking")
	}
	if err := verr.OrNil(); err != nil {
		return model.Appointment{}, err
	}

	q := s.quote(services, f.Location)
	if q.TotalCents <= 0 {
		return model.Appointment{}, validation.Single("service_ids", "total price must be greater than zero")
	}
	hadDeposit := existing.PaymentIntentID != "" || s.policy.DepositRequired(existing.ServiceCategories, existing.Location)
	if q.DepositRequired && !hadDeposit {
		return model.Appointment{}, validation.Single("service_ids", "this selection requires a deposit; please make a new booking")
	}
	moved := f.Date != existing.Date || f.Time != existing.Time
	if moved && !actor.Admin && !availability.MeetsLeadTime(f.Date, f.Time, s.policy.Now(s.now()), s.policy.LeadTime) {
		return model.Appointment{}, validation.Single("time", fmt.Sprintf("must be at least %s from now", s.policy.LeadTime))
	}

	next := newAppointment(f, q)
	next.ID = existing.ID
	next.SlotID = existing.SlotID
	next.DepositCents = existing.DepositCents
	next.PaymentIntentID = existing.PaymentIntentID
	next.CreatedAt = existing.CreatedAt
	next.ClientShowedUp = existing.ClientShowedUp
	if actor.Admin && f.ClientShowedUp != nil {
		next.ClientShowedUp = f.ClientShowedUp
	}
	save := s.ledger.Update
	if moved {
		save = s.ledger.Reschedule
	}
	updated, err := save(ctx, next)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	if moved {
		s.logger.Info("appointment rescheduled", "id", updated.ID, "from", existing.Date+" "+existing.Time, "to", updated.Date+" "+updated.Time, "slot", updated.SlotID)
	}
	return updated, nil
}

// SetAttendance records whether the client showed up.
func (s *Service) SetAttendance(ctx context.Context, id string, showedUp bool) (model.Appointment, error) {
	appt, err := s.ledger.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.ClientShowedUp = &showedUp
	return s.ledger.Update(ctx, appt)
}

// Cancel deletes an appointment and re-opens its slot. Bookings covered by the
// deposit rule are refused for every actor before anything is deleted.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	appt, err := s.load(ctx, id, actor)
	if err != nil {
		return model.Appointment{}, err
	}
	if s.policy.CancellationRefused(appt.ServiceCategories, appt.Location) {
		s.logger.Info("cancellation refused by deposit policy", "appointment_id", appt.ID, "admin", actor.Admin)
		return model.Appointment{}, &CancellationRefusedError{ContactURL: s.policy.ManualCancelURL}
	}
	deleted, err := s.ledger.Delete(ctx, id)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("delete appointment: %w", err)
	}
	s.logger.Info("appointment cancelled", "appointment_id", deleted.ID, "admin", actor.Admin)
	if s.notifier != nil {
		if err := s.notifier.AppointmentCancelled(ctx, deleted); err != nil {
			s.logger.Warn("notification delivery failed", "event", "appointment_cancelled", "appointment_id", deleted.ID, "err", err)
		}
	}
	return deleted, nil
}

// Lookup lists a client's bookings by email.
func (s *Service) Lookup(ctx context.Context, email string) ([]model.Appointment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Struct(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return nil, err
	}
	return s.ledger.ListByEmail(ctx, email)
}

func (s *Service) AdminList(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return s.ledger.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	return s.load(ctx, id, actor)
}

func (s *Service) notifyConfirmed(ctx context.Context, appt model.Appointment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AppointmentConfirmed(ctx, appt); err != nil {
		s.logger.Warn("notification delivery failed", "event", "appointment_confirmed", "appointment_id", appt.ID, "err", err)
	}
}
