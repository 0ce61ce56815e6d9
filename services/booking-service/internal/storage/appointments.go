package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// AppointmentRepository is the appointment ledger. Creating an appointment
// consumes its slot in the same transaction.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const (
	uniqueSlot          = "appointments_slot_id_key"
	uniquePaymentIntent = "appointments_payment_intent_id_key"
)

const appointmentColumns = `id::text, service_id, service_ids, service_categories, service_name, service_price_cents,
	to_char(appt_date, 'YYYY-MM-DD'), to_char(appt_time, 'HH24:MI'), location, COALESCE(slot_id::text, ''),
	client_name, client_phone, client_email, is_first_time, COALESCE(notes, ''), client_showed_up,
	deposit_cents, COALESCE(payment_intent_id, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.ServiceID,
		&a.ServiceIDs,
		&a.ServiceCategories,
		&a.ServiceName,
		&a.ServicePriceCents,
		&a.Date,
		&a.Time,
		&a.Location,
		&a.SlotID,
		&a.ClientName,
		&a.ClientPhone,
		&a.ClientEmail,
		&a.IsFirstTime,
		&a.Notes,
		&a.ClientShowedUp,
		&a.DepositCents,
		&a.PaymentIntentID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create claims the oldest open slot matching date, time and location and inserts
// the appointment against it. Concurrent callers never share a slot: the claim
// skips rows locked by another transaction and the slot_id unique index backs it up.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	var created model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		slotID, err := claimSlot(ctx, tx, appt)
		if err != nil {
			return err
		}

		created, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments
				(service_id, service_ids, service_categories, service_name, service_price_cents,
				 appt_date, appt_time, location, slot_id, client_name, client_phone, client_email,
				 is_first_time, notes, client_showed_up, deposit_cents, payment_intent_id)
			VALUES ($1, $2, $3, $4, $5, $6::date, $7::time, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING `+appointmentColumns,
			appt.ServiceID, appt.ServiceIDs, appt.ServiceCategories, appt.ServiceName, appt.ServicePriceCents,
			appt.Date, appt.Time, appt.Location, slotID, appt.ClientName, appt.ClientPhone, appt.ClientEmail,
			appt.IsFirstTime, nullIfEmpty(appt.Notes), appt.ClientShowedUp, appt.DepositCents, nullIfEmpty(appt.PaymentIntentID),
		))
		switch {
		case db.IsUniqueViolation(err, uniquePaymentIntent):
			return model.ErrDuplicatePayment
		case db.IsUniqueViolation(err, uniqueSlot):
			return model.ErrSlotTaken
		}
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}

// claimSlot closes the oldest open slot matching appt's date, time and location
// and returns its id. Rows locked by a concurrent claim are skipped.
func claimSlot(ctx context.Context, tx pgx.Tx, appt model.Appointment) (string, error) {
	var slotID string
	err := tx.QueryRow(ctx, `
		UPDATE available_slots
		SET is_available = false
		WHERE id = (
			SELECT id FROM available_slots
			WHERE slot_date = $1::date AND slot_time = $2::time AND location = $3 AND is_available
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text
	`, appt.Date, appt.Time, appt.Location).Scan(&slotID)
	if db.IsNoRows(err) {
		return "", slotMiss(ctx, tx, appt)
	}
	return slotID, err
}

// slotMiss tells a taken slot from one that was never published.
func slotMiss(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM available_slots
			WHERE slot_date = $1::date AND slot_time = $2::time AND location = $3
		)
	`, appt.Date, appt.Time, appt.Location).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return model.ErrSlotTaken
	}
	return model.ErrSlotNotFound
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, model.ErrNotFound
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r *AppointmentRepository) FindByPaymentIntent(ctx context.Context, intentID string) (model.Appointment, error) {
	if intentID == "" {
		return model.Appointment{}, model.ErrNotFound
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_intent_id = $1
	`, intentID))
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	return a, nil
}

func (r *AppointmentRepository) ListByEmail(ctx context.Context, email string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE lower(client_email) = lower($1)
		ORDER BY appt_date, appt_time
	`, email)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) List(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Date != "" {
		add("appt_date = $%d::date", f.Date)
	}
	if f.From != "" {
		add("appt_date >= $%d::date", f.From)
	}
	if f.To != "" {
		add("appt_date <= $%d::date", f.To)
	}
	if f.Location != "" {
		add("location = $%d", f.Location)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appt_date, appt_time, created_at`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Update rewrites the editable fields. Slot, payment and creation data are kept.
func (r *AppointmentRepository) Update(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if !validID(appt.ID) {
		return model.Appointment{}, model.ErrNotFound
	}
	a, err := updateAppointment(ctx, r.pool, appt, nil)
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	return a, nil
}

// Reschedule moves appt onto the open slot matching its new date and time and
// re-opens the slot it held, in one transaction. It fails like Create when no
// such slot is open.
func (r *AppointmentRepository) Reschedule(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if !validID(appt.ID) {
		return model.Appointment{}, model.ErrNotFound
	}
	var moved model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var held *string
		err := tx.QueryRow(ctx, `SELECT slot_id::text FROM appointments WHERE id = $1 FOR UPDATE`, appt.ID).Scan(&held)
		if err != nil {
			return notFound(err)
		}
		slotID, err := claimSlot(ctx, tx, appt)
		if err != nil {
			return err
		}
		moved, err = updateAppointment(ctx, tx, appt, &slotID)
		if db.IsUniqueViolation(err, uniqueSlot) {
			return model.ErrSlotTaken
		}
		if err != nil {
			return err
		}
		if held == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE available_slots SET is_available = true WHERE id = $1`, *held)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return moved, nil
}

// updateAppointment writes the editable fields; a nil slotID keeps the held slot.
func updateAppointment(ctx context.Context, q querier, appt model.Appointment, slotID *string) (model.Appointment, error) {
	return scanAppointment(q.QueryRow(ctx, `
		UPDATE appointments
		SET service_id = $2,
			service_ids = $3,
			service_categories = $4,
			service_name = $5,
			service_price_cents = $6,
			appt_date = $7::date,
			appt_time = $8::time,
			location = $9,
			client_name = $10,
			client_phone = $11,
			client_email = $12,
			is_first_time = $13,
			notes = $14,
			client_showed_up = $15,
			deposit_cents = $16,
			slot_id = COALESCE($17::uuid, slot_id),
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		appt.ID, appt.ServiceID, appt.ServiceIDs, appt.ServiceCategories, appt.ServiceName, appt.ServicePriceCents,
		appt.Date, appt.Time, appt.Location, appt.ClientName, appt.ClientPhone, appt.ClientEmail,
		appt.IsFirstTime, nullIfEmpty(appt.Notes), appt.ClientShowedUp, appt.DepositCents, slotID,
	))
}

// Delete removes the appointment and re-opens the slot it consumed.
func (r *AppointmentRepository) Delete(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, model.ErrNotFound
	}
	var deleted model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		deleted, err = scanAppointment(tx.QueryRow(ctx, `
			DELETE FROM appointments
			WHERE id = $1
			RETURNING `+appointmentColumns, id))
		if err != nil {
			return notFound(err)
		}
		if deleted.SlotID == "" {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE available_slots SET is_available = true WHERE id = $1`, deleted.SlotID)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return deleted, nil
}
