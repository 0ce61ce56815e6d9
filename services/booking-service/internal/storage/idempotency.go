package storage

import (
	"context"
	"errors"

	"github.com/lunalash/studio/libs/db"
)

// IdempotencyRecord is the stored response for a booking request's Idempotency-Key.
// RequestHash fingerprints the request body the key was first used with.
type IdempotencyRecord struct {
	Key             string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
	RequestHash     string
}

type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) Lookup(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	var rec IdempotencyRecord
	var responseText string
	err := r.pool.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(appointment_id::text, ''),
			status_code,
			COALESCE(response_payload::text, ''),
			request_hash
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
	`, key).Scan(&rec.Key, &rec.AppointmentID, &rec.StatusCode, &responseText, &rec.RequestHash)
	if err != nil {
		if db.IsNoRows(err) {
			return IdempotencyRecord{}, false, nil
		}
		return IdempotencyRecord{}, false, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, true, nil
}

// Save stores the first response for key. Later saves for the same key are ignored.
func (r *IdempotencyRepository) Save(ctx context.Context, rec IdempotencyRecord) error {
	if rec.Key == "" {
		return errors.New("idempotency key is required")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key, appointment_id, status_code, response_payload, request_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, rec.Key, nullIfEmpty(rec.AppointmentID), rec.StatusCode, nullIfEmpty(string(rec.ResponsePayload)), rec.RequestHash)
	return err
}
