package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

type ContactRepository struct {
	pool *db.Pool
}

func NewContactRepository(pool *db.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

const contactColumns = `id::text, name, COALESCE(email, ''), COALESCE(phone, ''), message, rating, created_at`

func scanContact(row pgx.Row) (model.ContactMessage, error) {
	var m model.ContactMessage
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Message, &m.Rating, &m.CreatedAt)
	return m, err
}

func (r *ContactRepository) Create(ctx context.Context, m model.ContactMessage) (model.ContactMessage, error) {
	return scanContact(r.pool.QueryRow(ctx, `
		INSERT INTO contact_messages (name, email, phone, message, rating)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+contactColumns,
		m.Name, nullIfEmpty(m.Email), nullIfEmpty(m.Phone), m.Message, m.Rating))
}

func (r *ContactRepository) Get(ctx context.Context, id string) (model.ContactMessage, error) {
	if !validID(id) {
		return model.ContactMessage{}, model.ErrNotFound
	}
	m, err := scanContact(r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contact_messages WHERE id = $1`, id))
	if err != nil {
		return model.ContactMessage{}, notFound(err)
	}
	return m, nil
}

// List returns messages newest first. limit <= 0 means no limit.
func (r *ContactRepository) List(ctx context.Context, onlyRated bool, limit int) ([]model.ContactMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contact_messages
		WHERE (NOT $1 OR rating > 0)
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`, onlyRated, max(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ContactMessage{}
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContactRepository) Update(ctx context.Context, m model.ContactMessage) (model.ContactMessage, error) {
	if !validID(m.ID) {
		return model.ContactMessage{}, model.ErrNotFound
	}
	updated, err := scanContact(r.pool.QueryRow(ctx, `
		UPDATE contact_messages
		SET name = $2, email = $3, phone = $4, message = $5, rating = $6
		WHERE id = $1
		RETURNING `+contactColumns,
		m.ID, m.Name, nullIfEmpty(m.Email), nullIfEmpty(m.Phone), m.Message, m.Rating))
	if err != nil {
		return model.ContactMessage{}, notFound(err)
	}
	return updated, nil
}

func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	return affected(r.pool.Exec(ctx, `DELETE FROM contact_messages WHERE id = $1`, id))
}
