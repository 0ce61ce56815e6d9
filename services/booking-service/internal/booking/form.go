package booking

import (
	"strings"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

// Form is what the client submits to book, quote or edit an appointment.
type Form struct {
	Location    string   `json:"location" validate:"required"`
	ServiceIDs  []string `json:"service_ids" validate:"min=1,unique,dive,required"`
	Date        string   `json:"date" validate:"required,date"`
	Time        string   `json:"time" validate:"required,hhmm"`
	ClientName  string   `json:"client_name" validate:"required,max=120"`
	ClientPhone string   `json:"client_phone" validate:"required,phone"`
	ClientEmail string   `json:"client_email" validate:"required,email"`
	IsFirstTime bool     `json:"is_first_time"`
	Notes       string   `json:"notes" validate:"max=1000"`

	// Admin edits only.
	ClientShowedUp *bool `json:"client_showed_up,omitempty"`
}

func (f Form) normalized() Form {
	f.Location = strings.TrimSpace(f.Location)
	f.Date = strings.TrimSpace(f.Date)
	f.Time = strings.TrimSpace(f.Time)
	f.ClientName = strings.TrimSpace(f.ClientName)
	f.ClientPhone = strings.TrimSpace(f.ClientPhone)
	f.ClientEmail = strings.ToLower(strings.TrimSpace(f.ClientEmail))
	f.Notes = strings.TrimSpace(f.Notes)
	ids := make([]string, 0, len(f.ServiceIDs))
	for _, id := range f.ServiceIDs {
		ids = append(ids, strings.TrimSpace(id))
	}
	f.ServiceIDs = ids
	return f
}

// Quote is the price summary shown before confirming.
type Quote struct {
	ServiceIDs        []string `json:"service_ids"`
	ServiceName       string   `json:"service_name"`
	ServiceCategories []string `json:"service_categories"`
	TotalCents        int64    `json:"total_cents"`
	DepositRequired   bool     `json:"deposit_required"`
	DepositCents      int64    `json:"deposit_cents"`
	BalanceCents      int64    `json:"balance_cents"`
	Currency          string   `json:"currency"`
}

func summarize(services []model.Service) (name string, categories []string, total int64) {
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name)
		categories = append(categories, s.Category)
		total += s.PriceCents
	}
	return strings.Join(names, " + "), categories, total
}
