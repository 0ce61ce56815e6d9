package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrSlotTaken        = errors.New("slot already taken")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrDuplicatePayment = errors.New("payment already applied to an appointment")
	ErrSlotHeld         = errors.New("slot is held by an appointment")
)

// Appointment is a confirmed booking. Service name, categories and price are
// snapshots taken at booking time and never re-joined against the catalog.
type Appointment struct {
	ID                string     `json:"id"`
	ServiceID         string     `json:"service_id"`
	ServiceIDs        []string   `json:"service_ids"`
	ServiceCategories []string   `json:"service_categories"`
	ServiceName       string     `json:"service_name"`
	ServicePriceCents int64      `json:"service_price_cents"`
	Date              string     `json:"date"`
	Time              string     `json:"time"`
	Location          string     `json:"location"`
	SlotID            string     `json:"slot_id,omitempty"`
	ClientName        string     `json:"client_name"`
	ClientPhone       string     `json:"client_phone"`
	ClientEmail       string     `json:"client_email"`
	IsFirstTime       bool       `json:"is_first_time"`
	Notes             string     `json:"notes,omitempty"`
	ClientShowedUp    *bool      `json:"client_showed_up,omitempty"`
	DepositCents      int64      `json:"deposit_cents,omitempty"`
	PaymentIntentID   string     `json:"payment_intent_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// AppointmentFilter narrows the admin listing. Empty fields are ignored.
type AppointmentFilter struct {
	Date     string
	From     string
	To       string
	Location string
	Limit    int
}
