package kafkax

import (
	"github.com/lunalash/studio/libs/config"
	"github.com/segmentio/kafka-go"
)

// Topics shared by the booking and notification services. Topic name equals event type.
const (
	TopicAppointmentConfirmed = "booking.appointment.confirmed.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
	TopicDepositRefunded      = "booking.deposit.refunded.v1"
)

// EventMeta is the canonical metadata carried on Kafka messages across services.
type EventMeta struct {
	EventID   string
	EventType string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	eventID := HeaderValue(msg.Headers, "event_id")
	eventType := HeaderValue(msg.Headers, "event_type")
	if eventID == "" {
		eventID = string(msg.Key)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return EventMeta{EventID: eventID, EventType: eventType}
}

// MetaHeaders builds the event_id/event_type headers read back by ExtractEventMeta.
func MetaHeaders(meta EventMeta) []kafka.Header {
	return []kafka.Header{
		{Key: "event_id", Value: []byte(meta.EventID)},
		{Key: "event_type", Value: []byte(meta.EventType)},
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	return config.SplitList(raw)
}
