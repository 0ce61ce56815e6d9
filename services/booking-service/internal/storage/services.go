package storage

import (
	"context"

	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

type ServiceRepository struct {
	pool *db.Pool
}

func NewServiceRepository(pool *db.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

const serviceColumns = `id::text, name, description, location, category, price_cents, created_at, updated_at`

func (r *ServiceRepository) List(ctx context.Context, location string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE ($1 = '' OR location = $1)
		ORDER BY category, name
	`, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Service{}
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Location, &s.Category, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ServiceRepository) Get(ctx context.Context, id string) (model.Service, error) {
	if !validID(id) {
		return model.Service{}, model.ErrNotFound
	}
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.Location, &s.Category, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Service{}, notFound(err)
	}
	return s, nil
}

// GetMany returns the services that exist among ids, in no particular order.
func (r *ServiceRepository) GetMany(ctx context.Context, ids []string) ([]model.Service, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return []model.Service{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Service{}
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Location, &s.Category, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ServiceRepository) Create(ctx context.Context, s model.Service) (model.Service, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (name, description, location, category, price_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+serviceColumns+`
	`, s.Name, s.Description, s.Location, s.Category, s.PriceCents).Scan(
		&s.ID, &s.Name, &s.Description, &s.Location, &s.Category, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return s, nil
}

func (r *ServiceRepository) Update(ctx context.Context, s model.Service) (model.Service, error) {
	if !validID(s.ID) {
		return model.Service{}, model.ErrNotFound
	}
	err := r.pool.QueryRow(ctx, `
		UPDATE services
		SET name = $2,
			description = $3,
			location = $4,
			category = $5,
			price_cents = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING `+serviceColumns+`
	`, s.ID, s.Name, s.Description, s.Location, s.Category, s.PriceCents).Scan(
		&s.ID, &s.Name, &s.Description, &s.Location, &s.Category, &s.PriceCents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Service{}, notFound(err)
	}
	return s, nil
}

// Delete leaves existing appointments intact; they carry their own snapshot.
func (r *ServiceRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	return affected(r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id))
}
