package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lunalash/studio/libs/kafkax"
	"github.com/lunalash/studio/services/notification-service/internal/push"
	"github.com/lunalash/studio/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type Recorder interface {
	Record(ctx context.Context, n storage.Notification) error
}

type PushNotifier interface {
	Notify(ctx context.Context, msg push.Message) (push.Result, error)
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	Send(ctx context.Context, to, body string) error
	ProviderID() string
}

type Config struct {
	StudioName     string
	AdminURL       string
	CurrencySymbol string
	// ClientMessages enables confirmation/refund email and SMS to clients.
	ClientMessages bool
}

type Deps struct {
	Push     PushNotifier
	Email    EmailSender
	SMS      SMSSender
	Recorder Recorder
	Logger   *slog.Logger
	Config   Config
}

// Dispatcher turns booking events into admin pushes and client messages.
type Dispatcher struct {
	push     PushNotifier
	email    EmailSender
	sms      SMSSender
	recorder Recorder
	logger   *slog.Logger
	cfg      Config
}

func New(d Deps) *Dispatcher {
	cfg := d.Config
	if cfg.StudioName == "" {
		cfg.StudioName = "Studio"
	}
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "R$"
	}
	return &Dispatcher{
		push:     d.Push,
		email:    d.Email,
		sms:      d.SMS,
		recorder: d.Recorder,
		logger:   d.Logger,
		cfg:      cfg,
	}
}

// Topics lists the topics Handle understands.
func Topics() []string {
	return []string{
		kafkax.TopicAppointmentConfirmed,
		kafkax.TopicAppointmentCancelled,
		kafkax.TopicDepositRefunded,
	}
}

// Handle processes one event. Malformed payloads and delivery failures are
// logged and recorded, never returned; only audit-log failures are errors.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	switch meta.EventType {
	case kafkax.TopicAppointmentConfirmed:
		var evt kafkax.AppointmentEvent
		if !d.decode(msg, meta, &evt) {
			return nil
		}
		return d.appointmentConfirmed(ctx, meta, evt)
	case kafkax.TopicAppointmentCancelled:
		var evt kafkax.AppointmentEvent
		if !d.decode(msg, meta, &evt) {
			return nil
		}
		return d.pushAdmins(ctx, meta, push.Message{
			Title: "Booking cancelled",
			Body:  fmt.Sprintf("%s cancelled %s", evt.ClientName, d.when(evt.ServiceName, evt.Date, evt.Time, evt.Location)),
			URL:   d.cfg.AdminURL,
			Tag:   "appointment-" + evt.AppointmentID,
		})
	case kafkax.TopicDepositRefunded:
		var evt kafkax.DepositRefundedEvent
		if !d.decode(msg, meta, &evt) {
			return nil
		}
		return d.depositRefunded(ctx, meta, evt)
	default:
		d.logger.Warn("unhandled event type", "event_type", meta.EventType, "event_id", meta.EventID)
		return nil
	}
}

func (d *Dispatcher) decode(msg kafka.Message, meta kafkax.EventMeta, dst any) bool {
	if err := json.Unmarshal(msg.Value, dst); err != nil {
		d.logger.Error("invalid event payload", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		return false
	}
	return true
}

func (d *Dispatcher) appointmentConfirmed(ctx context.Context, meta kafkax.EventMeta, evt kafkax.AppointmentEvent) error {
	title := "New booking"
	if evt.IsFirstTime {
		title = "New booking (first visit)"
	}
	body := fmt.Sprintf("%s: %s", evt.ClientName, d.when(evt.ServiceName, evt.Date, evt.Time, evt.Location))
	if evt.DepositCents > 0 {
		body += fmt.Sprintf(" (deposit %s paid)", d.money(evt.DepositCents))
	}
	if err := d.pushAdmins(ctx, meta, push.Message{
		Title: title,
		Body:  body,
		URL:   d.cfg.AdminURL,
		Tag:   "appointment-" + evt.AppointmentID,
	}); err != nil {
		return err
	}
	if !d.cfg.ClientMessages {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour booking at %s is confirmed.\n\n", evt.ClientName, d.cfg.StudioName)
	fmt.Fprintf(&b, "Service: %s\nDate: %s at %s\nLocation: %s\nTotal: %s\n", evt.ServiceName, evt.Date, evt.Time, evt.Location, d.money(evt.ServicePriceCents))
	if evt.DepositCents > 0 {
		fmt.Fprintf(&b, "Deposit paid: %s\nBalance due at the studio: %s\n", d.money(evt.DepositCents), d.money(evt.ServicePriceCents-evt.DepositCents))
	}
	b.WriteString("\nSee you soon!\n")
	if err := d.sendEmail(ctx, meta, evt.ClientEmail, d.cfg.StudioName+": booking confirmed", b.String()); err != nil {
		return err
	}

	sms := fmt.Sprintf("%s: booking confirmed for %s at %s (%s).", d.cfg.StudioName, evt.Date, evt.Time, evt.Location)
	return d.sendSMS(ctx, meta, evt.ClientPhone, sms)
}

func (d *Dispatcher) depositRefunded(ctx context.Context, meta kafkax.EventMeta, evt kafkax.DepositRefundedEvent) error {
	if err := d.pushAdmins(ctx, meta, push.Message{
		Title: "Deposit refunded",
		Body:  fmt.Sprintf("%s paid %s but the slot was gone: %s", evt.ClientName, d.money(evt.AmountCents), d.when(evt.ServiceName, evt.Date, evt.Time, evt.Location)),
		URL:   d.cfg.AdminURL,
		Tag:   "refund-" + evt.PendingID,
	}); err != nil {
		return err
	}
	if !d.cfg.ClientMessages {
		return nil
	}
	body := fmt.Sprintf("Hi %s,\n\nThe time you picked (%s at %s, %s) was taken before your payment finished, so we refunded your deposit of %s.\nPlease choose another time on our website.\n\n%s\n",
		evt.ClientName, evt.Date, evt.Time, evt.Location, d.money(evt.AmountCents), d.cfg.StudioName)
	return d.sendEmail(ctx, meta, evt.ClientEmail, d.cfg.StudioName+": deposit refunded", body)
}

func (d *Dispatcher) pushAdmins(ctx context.Context, meta kafkax.EventMeta, msg push.Message) error {
	n := storage.Notification{
		EventID:   meta.EventID,
		EventType: meta.EventType,
		Channel:   "push",
		Recipient: "admins",
		Status:    storage.StatusSent,
		Payload:   msg,
	}
	res, err := d.push.Notify(ctx, msg)
	switch {
	case err != nil:
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		d.logger.Error("notification delivery failed", "channel", "push", "err", err, "event_id", meta.EventID)
	case res.Sent == 0:
		n.Status = storage.StatusSkipped
		n.Error = "no active subscriptions"
	}
	return d.recorder.Record(ctx, n)
}

func (d *Dispatcher) sendEmail(ctx context.Context, meta kafkax.EventMeta, to, subject, body string) error {
	n := storage.Notification{
		EventID:   meta.EventID,
		EventType: meta.EventType,
		Channel:   "email",
		Recipient: to,
		Status:    storage.StatusSent,
		Payload:   map[string]string{"subject": subject},
	}
	if strings.TrimSpace(to) == "" {
		n.Status = storage.StatusSkipped
		n.Error = "no email address"
	} else if err := d.email.Send(ctx, to, subject, body); err != nil {
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		d.logger.Error("notification delivery failed", "channel", "email", "err", err, "event_id", meta.EventID)
	}
	return d.recorder.Record(ctx, n)
}

func (d *Dispatcher) sendSMS(ctx context.Context, meta kafkax.EventMeta, to, body string) error {
	n := storage.Notification{
		EventID:   meta.EventID,
		EventType: meta.EventType,
		Channel:   "sms",
		Recipient: to,
		Status:    storage.StatusSent,
		Payload:   map[string]string{"provider": d.sms.ProviderID()},
	}
	if strings.TrimSpace(to) == "" {
		n.Status = storage.StatusSkipped
		n.Error = "no phone number"
	} else if err := d.sms.Send(ctx, to, body); err != nil {
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		d.logger.Error("notification delivery failed", "channel", "sms", "err", err, "event_id", meta.EventID)
	}
	return d.recorder.Record(ctx, n)
}

func (d *Dispatcher) when(service, date, tm, location string) string {
	return fmt.Sprintf("%s on %s at %s, %s", service, date, tm, location)
}

func (d *Dispatcher) money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, d.cfg.CurrencySymbol, cents/100, cents%100)
}
