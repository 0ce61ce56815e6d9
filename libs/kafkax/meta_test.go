package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMeta(t *testing.T) {
	msg := kafka.Message{
		Topic:   TopicAppointmentConfirmed,
		Key:     []byte("appt-1"),
		Headers: MetaHeaders(EventMeta{EventID: "evt-1", EventType: TopicAppointmentConfirmed}),
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != TopicAppointmentConfirmed {
		t.Fatalf("unexpected meta %+v", meta)
	}

	bare := kafka.Message{Topic: TopicAppointmentCancelled, Key: []byte("appt-2")}
	meta = ExtractEventMeta(bare)
	if meta.EventID != "appt-2" || meta.EventType != TopicAppointmentCancelled {
		t.Fatalf("expected key/topic fallback, got %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %#v", got)
	}
}
