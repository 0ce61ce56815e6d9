package outbox

import (
	"context"
	"encoding/json"

	"github.com/lunalash/studio/libs/kafkax"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Inserter is satisfied by *Repository.
type Inserter interface {
	Insert(ctx context.Context, q execer, evt Event) error
}

// Notifier turns booking changes into outbox events for the notification service.
type Notifier struct {
	repo Inserter
}

func NewNotifier(repo Inserter) *Notifier {
	return &Notifier{repo: repo}
}

func (n *Notifier) AppointmentConfirmed(ctx context.Context, appt model.Appointment) error {
	return n.emit(ctx, "appointment", appt.ID, kafkax.TopicAppointmentConfirmed, appointmentEvent(appt))
}

func (n *Notifier) AppointmentCancelled(ctx context.Context, appt model.Appointment) error {
	return n.emit(ctx, "appointment", appt.ID, kafkax.TopicAppointmentCancelled, appointmentEvent(appt))
}

func (n *Notifier) DepositRefunded(ctx context.Context, p booking.PendingBooking) error {
	return n.emit(ctx, "pending_booking", p.ID, kafkax.TopicDepositRefunded, kafkax.DepositRefundedEvent{
		PendingID:   p.ID,
		IntentID:    p.IntentID,
		AmountCents: p.Quote.DepositCents,
		Currency:    p.Quote.Currency,
		ServiceName: p.Quote.ServiceName,
		Date:        p.Form.Date,
		Time:        p.Form.Time,
		Location:    p.Form.Location,
		ClientName:  p.Form.ClientName,
		ClientEmail: p.Form.ClientEmail,
		ClientPhone: p.Form.ClientPhone,
	})
}

func (n *Notifier) emit(ctx context.Context, aggregateType, aggregateID, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.repo.Insert(ctx, nil, Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     topic,
		Payload:       body,
	})
}

func appointmentEvent(appt model.Appointment) kafkax.AppointmentEvent {
	return kafkax.AppointmentEvent{
		AppointmentID:     appt.ID,
		ServiceName:       appt.ServiceName,
		ServicePriceCents: appt.ServicePriceCents,
		DepositCents:      appt.DepositCents,
		Date:              appt.Date,
		Time:              appt.Time,
		Location:          appt.Location,
		ClientName:        appt.ClientName,
		ClientEmail:       appt.ClientEmail,
		ClientPhone:       appt.ClientPhone,
		IsFirstTime:       appt.IsFirstTime,
	}
}
