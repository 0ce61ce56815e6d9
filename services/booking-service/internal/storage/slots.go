package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// SlotRepository stores slot dates and times as DATE/TIME columns and exposes
// them in the YYYY-MM-DD / HH:MM wire forms.
type SlotRepository struct {
	pool *db.Pool
}

func NewSlotRepository(pool *db.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

const slotColumns = `id::text, to_char(slot_date, 'YYYY-MM-DD'), to_char(slot_time, 'HH24:MI'), location, is_available, created_at`

func scanSlot(row pgx.Row) (model.Slot, error) {
	var s model.Slot
	err := row.Scan(&s.ID, &s.Date, &s.Time, &s.Location, &s.IsAvailable, &s.CreatedAt)
	return s, err
}

func (r *SlotRepository) ListByDate(ctx context.Context, date, location string) ([]model.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM available_slots
		WHERE slot_date = $1::date AND ($2 = '' OR location = $2)
		ORDER BY slot_time, location, created_at
	`, date, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SlotRepository) Create(ctx context.Context, s model.Slot) (model.Slot, error) {
	return insertSlot(ctx, r.pool, s)
}

// CreateMany inserts every slot or none.
func (r *SlotRepository) CreateMany(ctx context.Context, slots []model.Slot) ([]model.Slot, error) {
	out := make([]model.Slot, 0, len(slots))
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, s := range slots {
			created, err := insertSlot(ctx, tx, s)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertSlot(ctx context.Context, q querier, s model.Slot) (model.Slot, error) {
	return scanSlot(q.QueryRow(ctx, `
		INSERT INTO available_slots (slot_date, slot_time, location, is_available)
		VALUES ($1::date, $2::time, $3, $4)
		RETURNING `+slotColumns+`
	`, s.Date, s.Time, s.Location, s.IsAvailable))
}

// SetAvailability opens or closes a slot. A slot an appointment still holds
// cannot be re-opened and fails with model.ErrSlotHeld.
func (r *SlotRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var held bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments WHERE slot_id = s.id)
			FROM available_slots s
			WHERE s.id = $1
			FOR UPDATE OF s
		`, id).Scan(&held)
		if db.IsNoRows(err) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if available && held {
			return model.ErrSlotHeld
		}
		_, err = tx.Exec(ctx, `UPDATE available_slots SET is_available = $2 WHERE id = $1`, id, available)
		return err
	})
}

func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	return affected(r.pool.Exec(ctx, `DELETE FROM available_slots WHERE id = $1`, id))
}

func (r *SlotRepository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM available_slots WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *SlotRepository) DeleteForDate(ctx context.Context, date, location string, onlyAvailable bool) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM available_slots
		WHERE slot_date = $1::date
			AND ($2 = '' OR location = $2)
			AND (NOT $3 OR is_available)
	`, date, location, onlyAvailable)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
