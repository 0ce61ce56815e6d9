package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/libs/kafkax"
	otelx "github.com/lunalash/studio/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// MaxBackoff caps the wait after consecutive failed batches.
	MaxBackoff time.Duration
}

// Publisher relays outbox rows to Kafka. Each row goes to the topic named by
// its event type, keyed by aggregate id so one appointment stays ordered.
type Publisher struct {
	pool    *db.Pool
	repo    *Repository
	logger  *slog.Logger
	brokers []string
	cfg     PublisherConfig
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Publisher{
		pool:    pool,
		repo:    repo,
		logger:  logger,
		brokers: kafkax.SplitBrokers(cfg.Brokers),
		cfg:     cfg,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled, KAFKA_BROKERS is empty")
		return
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	if n, err := p.repo.Backlog(ctx); err == nil && n > 0 {
		p.logger.Info("outbox backlog at startup", "count", n)
	}

	wait := p.cfg.PollEvery
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		n, err := p.PublishBatch(ctx, w)
		switch {
		case err != nil:
			wait = min(max(wait, p.cfg.PollEvery)*2, p.cfg.MaxBackoff)
			p.logger.Error("outbox publish failed", "err", err, "retry_in", wait)
		case n == p.cfg.BatchSize:
			// A full batch usually means more rows are queued.
			wait = 0
		default:
			wait = p.cfg.PollEvery
			if n > 0 {
				p.logger.Debug("outbox published", "count", n)
			}
		}
		timer.Reset(wait)
	}
}

// PublishBatch sends one claimed batch and marks it published in the same
// transaction. A failed write leaves the rows unpublished, so consumers see
// each event at least once.
func (p *Publisher) PublishBatch(ctx context.Context, w MessageWriter) (int, error) {
	var sent int
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.Claim(ctx, tx, p.cfg.BatchSize)
		if err != nil || len(records) == 0 {
			return err
		}
		if err := send(ctx, w, records); err != nil {
			return err
		}
		ids := make([]int64, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		sent = len(records)
		return p.repo.MarkPublished(ctx, tx, ids)
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}

func send(ctx context.Context, w MessageWriter, records []Record) error {
	msgs := make([]kafka.Message, len(records))
	ends := make([]func(error), len(records))
	for i, r := range records {
		msgs[i], ends[i] = produce(ctx, r)
	}
	err := w.WriteMessages(ctx, msgs...)
	for _, end := range ends {
		end(err)
	}
	if err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	return nil
}

// produce builds the message for r under a producer span that continues the
// trace stored with the row. The returned func ends the span.
func produce(ctx context.Context, r Record) (kafka.Message, func(error)) {
	msg := Message(r)
	span := kafkax.StartProduceSpan(otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate), &msg)
	return msg, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "kafka write failed")
		}
		span.End()
	}
}

// Message converts an outbox row into a Kafka message without trace headers.
func Message(r Record) kafka.Message {
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}),
	}
}
