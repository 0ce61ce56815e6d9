package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunalash/studio/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox records processed event ids.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	cfg     Config
}

type Config struct {
	Brokers     string
	GroupID     string
	Topics      []string
	MaxAttempts int
	Backoff     time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(reader, logger, inbox, cfg, handler)
}

func NewWithReader(reader MessageReader, logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		cfg:     cfg,
	}
}

// Run reads until ctx is cancelled. Offsets are committed once a message is
// handled, skipped as a duplicate, or given up on after MaxAttempts.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process reports false when ctx was cancelled before the message was settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	spanCtx, span := kafkax.StartConsumeSpan(ctx, msg)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	fresh, err := c.inbox.Record(spanCtx, meta.EventID, meta.EventType)
	for err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		if !sleep(ctx, c.cfg.Backoff) {
			return false
		}
		fresh, err = c.inbox.Record(spanCtx, meta.EventID, meta.EventType)
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return true
	}

	for attempt := 1; ; attempt++ {
		err := c.handler(spanCtx, msg)
		if err == nil {
			return true
		}
		span.RecordError(err)
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt >= c.cfg.MaxAttempts {
			break
		}
		if !sleep(ctx, c.cfg.Backoff*time.Duration(attempt)) {
			_ = c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID)
			return false
		}
	}

	span.SetStatus(codes.Error, "event dropped")
	c.logger.Error("event dropped after retries", "event_id", meta.EventID, "event_type", meta.EventType)
	if err := c.inbox.Forget(spanCtx, meta.EventID); err != nil {
		c.logger.Error("inbox forget failed", "err", err, "event_id", meta.EventID)
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
