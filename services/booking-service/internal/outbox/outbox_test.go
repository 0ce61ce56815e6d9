package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/lunalash/studio/libs/kafkax"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

type recordingInserter struct {
	events []Event
}

func (r *recordingInserter) Insert(_ context.Context, _ execer, evt Event) error {
	r.events = append(r.events, evt)
	return nil
}

func TestNotifierWritesTopicPerEvent(t *testing.T) {
	rec := &recordingInserter{}
	n := NewNotifier(rec)
	ctx := context.Background()
	appt := model.Appointment{ID: "a1", ServiceName: "Classic + Brow", Date: "2024-06-10", Time: "10:00", Location: "Location B", ClientEmail: "maria@example.com"}

	if err := n.AppointmentConfirmed(ctx, appt); err != nil {
		t.Fatal(err)
	}
	if err := n.AppointmentCancelled(ctx, appt); err != nil {
		t.Fatal(err)
	}
	p := booking.PendingBooking{ID: "p1", IntentID: "pi_1"}
	p.Quote.DepositCents = 3000
	if err := n.DepositRefunded(ctx, p); err != nil {
		t.Fatal(err)
	}

	want := []string{kafkax.TopicAppointmentConfirmed, kafkax.TopicAppointmentCancelled, kafkax.TopicDepositRefunded}
	if len(rec.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(rec.events))
	}
	for i, topic := range want {
		if rec.events[i].EventType != topic {
			t.Fatalf("event %d: expected %s, got %s", i, topic, rec.events[i].EventType)
		}
	}

	var payload kafkax.AppointmentEvent
	if err := json.Unmarshal(rec.events[0].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.AppointmentID != "a1" || payload.ServiceName != "Classic + Brow" || rec.events[0].AggregateID != "a1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	var refund kafkax.DepositRefundedEvent
	if err := json.Unmarshal(rec.events[2].Payload, &refund); err != nil {
		t.Fatal(err)
	}
	if refund.AmountCents != 3000 || refund.IntentID != "pi_1" {
		t.Fatalf("unexpected refund payload: %+v", refund)
	}
}

func TestMessageCarriesMetaHeaders(t *testing.T) {
	msg := Message(Record{EventID: "e1", EventType: kafkax.TopicAppointmentConfirmed, AggregateID: "a1", Payload: []byte(`{}`)})
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "e1" || meta.EventType != kafkax.TopicAppointmentConfirmed {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if msg.Topic != kafkax.TopicAppointmentConfirmed || string(msg.Key) != "a1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func TestSendContinuesStoredTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const tp = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	w := &fakeWriter{}
	records := []Record{
		{ID: 1, EventID: "e1", EventType: kafkax.TopicAppointmentConfirmed, AggregateID: "a1", Traceparent: tp},
		{ID: 2, EventID: "e2", EventType: kafkax.TopicDepositRefunded, AggregateID: "p1"},
	}
	if err := send(context.Background(), w, records); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	got := kafkax.HeaderValue(w.msgs[0].Headers, "traceparent")
	if len(got) != len(tp) || got[3:35] != tp[3:35] {
		t.Fatalf("expected trace 4bf92f... to continue, got %q", got)
	}
	if w.msgs[1].Topic != kafkax.TopicDepositRefunded {
		t.Fatalf("unexpected topic %s", w.msgs[1].Topic)
	}

	w.err = errors.New("broker down")
	if err := send(context.Background(), w, records[:1]); !errors.Is(err, w.err) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}
