package kafkax

// AppointmentEvent is the payload of the appointment confirmed/cancelled topics.
type AppointmentEvent struct {
	AppointmentID     string `json:"appointment_id"`
	ServiceName       string `json:"service_name"`
	ServicePriceCents int64  `json:"service_price_cents"`
	DepositCents      int64  `json:"deposit_cents,omitempty"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	Location          string `json:"location"`
	ClientName        string `json:"client_name"`
	ClientEmail       string `json:"client_email"`
	ClientPhone       string `json:"client_phone"`
	IsFirstTime       bool   `json:"is_first_time"`
}

// DepositRefundedEvent is emitted when a paid deposit could not be turned into a booking.
type DepositRefundedEvent struct {
	PendingID   string `json:"pending_id"`
	IntentID    string `json:"payment_intent_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	ServiceName string `json:"service_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
}
