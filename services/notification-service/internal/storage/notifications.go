package storage

import (
	"context"
	"encoding/json"

	"github.com/lunalash/studio/libs/db"
)

// Notification is one delivery attempt on one channel.
type Notification struct {
	EventID   string
	EventType string
	Channel   string
	Recipient string
	Status    string
	Error     string
	Payload   any
}

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type NotificationRepository struct {
	pool *db.Pool
}

func NewNotificationRepository(pool *db.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Record(ctx context.Context, n Notification) error {
	var payload []byte
	if n.Payload != nil {
		raw, err := json.Marshal(n.Payload)
		if err != nil {
			return err
		}
		payload = raw
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, event_type, channel, recipient, status, error, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.EventID, n.EventType, n.Channel, n.Recipient, n.Status, n.Error, payload)
	return err
}
