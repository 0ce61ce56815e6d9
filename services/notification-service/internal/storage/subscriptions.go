package storage

import (
	"context"

	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/notification-service/internal/push"
)

type SubscriptionRepository struct {
	pool *db.Pool
}

func NewSubscriptionRepository(pool *db.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// UpsertSubscription registers an endpoint, replacing keys and owner when it already exists.
func (r *SubscriptionRepository) UpsertSubscription(ctx context.Context, s push.Subscription) (push.Subscription, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO push_subscriptions (username, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE
		SET username = EXCLUDED.username, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = now()
		RETURNING id::text, created_at
	`, s.Username, s.Endpoint, s.P256dh, s.Auth).Scan(&s.ID, &s.CreatedAt)
	return s, err
}

func (r *SubscriptionRepository) ListSubscriptions(ctx context.Context) ([]push.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, username, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []push.Subscription
	for rows.Next() {
		var s push.Subscription
		if err := rows.Scan(&s.ID, &s.Username, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubscriptionRepository) DeleteSubscription(ctx context.Context, endpoint string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return push.ErrUnknownSubscription
	}
	return nil
}
