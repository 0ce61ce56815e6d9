package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lunalash/studio/libs/db"
	otelx "github.com/lunalash/studio/libs/otel"
)

// Record is a stored outbox row.
type Record struct {
	ID            int64     `db:"id"`
	EventID       string    `db:"event_id"`
	AggregateType string    `db:"aggregate_type"`
	AggregateID   string    `db:"aggregate_id"`
	EventType     string    `db:"event_type"`
	Payload       []byte    `db:"payload"`
	Traceparent   string    `db:"traceparent"`
	Tracestate    string    `db:"tracestate"`
	CreatedAt     time.Time `db:"created_at"`
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores evt together with the trace context of ctx. A nil q writes
// through the pool; pass a pgx.Tx to make the event part of a larger write.
func (r *Repository) Insert(ctx context.Context, q execer, evt Event) error {
	if q == nil {
		q = r.pool
	}
	tp, ts := otelx.TraceContextStrings(ctx)
	_, err := q.Exec(ctx,
		`INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tp, ts)
	return err
}

// Claim locks up to limit unpublished rows in id order. Rows held by another
// publisher are skipped; the locks last until tx ends.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, event_id::text AS event_id, aggregate_type, aggregate_id, event_type,
		        payload, traceparent, tracestate, created_at
		   FROM outbox_events
		  WHERE published_at IS NULL
		  ORDER BY id
		  LIMIT $1
		    FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Record])
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

// Backlog counts rows still waiting to be published.
func (r *Repository) Backlog(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE published_at IS NULL`).Scan(&n)
	return n, err
}

// PurgePublished drops rows published before cutoff.
func (r *Repository) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
