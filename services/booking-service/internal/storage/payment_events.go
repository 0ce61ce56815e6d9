package storage

import (
	"context"
	"errors"

	"github.com/lunalash/studio/libs/db"
)

var ErrDuplicatePaymentEvent = errors.New("duplicate payment event")

// PaymentEventRepository remembers processed Stripe webhook event ids.
type PaymentEventRepository struct {
	pool *db.Pool
}

func NewPaymentEventRepository(pool *db.Pool) *PaymentEventRepository {
	return &PaymentEventRepository{pool: pool}
}

func (r *PaymentEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_events WHERE event_id = $1)`, eventID).Scan(&seen)
	return seen, err
}

// Record marks an event processed. A second record of the same id returns ErrDuplicatePaymentEvent.
func (r *PaymentEventRepository) Record(ctx context.Context, eventID, eventType string, payload []byte) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO payment_events (event_id, event_type, payload)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, string(payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicatePaymentEvent
	}
	return nil
}
