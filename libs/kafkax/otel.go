package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lunalash/studio/libs/kafkax"

// headers adapts a Kafka header slice to the OTel text map carrier.
type headers []kafka.Header

func (h *headers) Get(key string) string {
	for _, kv := range *h {
		if kv.Key == key {
			return string(kv.Value)
		}
	}
	return ""
}

func (h *headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headers) Keys() []string {
	out := make([]string, len(*h))
	for i, kv := range *h {
		out[i] = kv.Key
	}
	return out
}

var _ propagation.TextMapCarrier = (*headers)(nil)

// InjectTraceHeaders writes the span context of ctx into hs and returns the result.
func InjectTraceHeaders(ctx context.Context, hs []kafka.Header) []kafka.Header {
	c := headers(hs)
	otel.GetTextMapPropagator().Inject(ctx, &c)
	return c
}

// ExtractTraceContext returns ctx carrying the remote span found in msg's headers.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	c := headers(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &c)
}

// StartProduceSpan starts a producer span for msg and stamps its context into the headers.
func StartProduceSpan(ctx context.Context, msg *kafka.Message) trace.Span {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.produce "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(messagingAttrs(msg.Topic)...),
	)
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return span
}

// StartConsumeSpan continues the producer's trace for msg with a consumer span.
func StartConsumeSpan(ctx context.Context, msg kafka.Message) (context.Context, trace.Span) {
	attrs := append(messagingAttrs(msg.Topic),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	return otel.Tracer(tracerName).Start(ExtractTraceContext(ctx, msg), "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
}

func messagingAttrs(topic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", topic),
	}
}
