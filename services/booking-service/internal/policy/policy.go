package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lunalash/studio/libs/config"
)

// Policy holds every studio business rule that is configuration rather than logic.
type Policy struct {
	Locations []string

	// A deposit is due when any selected category is in DepositCategories
	// and the booking location is in DepositLocations.
	DepositCategories []string
	DepositLocations  []string
	DepositCents      int64
	Currency          string

	LeadTime   time.Duration
	SkipFrom   string
	SkipTo     string
	PurgeGrace time.Duration
	Timezone   *time.Location

	MaxServices   int
	CategoryOrder []string

	ManualCancelURL string
	PendingTTL      time.Duration
	PaymentTimeout  time.Duration
}

func Default() Policy {
	tz, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		tz = time.UTC
	}
	return Policy{
		Locations:         []string{"Location A", "Location B"},
		DepositCategories: []string{"lashes"},
		DepositLocations:  []string{"Location B"},
		DepositCents:      3000,
		Currency:          "brl",
		LeadTime:          24 * time.Hour,
		SkipFrom:          "12:00",
		SkipTo:            "13:59",
		PurgeGrace:        10 * time.Minute,
		Timezone:          tz,
		MaxServices:       3,
		CategoryOrder:     []string{"lashes", "eyebrows", "hair-removal"},
		ManualCancelURL:   "https://wa.me/5500000000000",
		PendingTTL:        2 * time.Hour,
		PaymentTimeout:    10 * time.Second,
	}
}

// FromEnv overlays STUDIO_* / DEPOSIT_* variables on Default.
func FromEnv() (Policy, error) {
	p := Default()
	p.Locations = config.List("STUDIO_LOCATIONS", p.Locations)
	p.DepositCategories = config.List("DEPOSIT_CATEGORIES", p.DepositCategories)
	p.DepositLocations = config.List("DEPOSIT_LOCATIONS", p.DepositLocations)
	p.DepositCents = config.Int64("DEPOSIT_CENTS", p.DepositCents)
	p.Currency = strings.ToLower(config.String("DEPOSIT_CURRENCY", p.Currency))
	p.LeadTime = config.Duration("BOOKING_LEAD_TIME", p.LeadTime)
	p.SkipFrom = config.String("SLOT_SKIP_FROM", p.SkipFrom)
	p.SkipTo = config.String("SLOT_SKIP_TO", p.SkipTo)
	p.PurgeGrace = config.Duration("SLOT_PURGE_GRACE", p.PurgeGrace)
	p.MaxServices = config.Int("BOOKING_MAX_SERVICES", p.MaxServices)
	p.CategoryOrder = config.List("CATEGORY_ORDER", p.CategoryOrder)
	p.ManualCancelURL = config.String("MANUAL_CANCEL_URL", p.ManualCancelURL)
	p.PendingTTL = config.Duration("PENDING_BOOKING_TTL", p.PendingTTL)
	p.PaymentTimeout = config.Duration("PAYMENT_TIMEOUT", p.PaymentTimeout)

	if name := config.String("STUDIO_TIMEZONE", ""); name != "" {
		tz, err := time.LoadLocation(name)
		if err != nil {
			return Policy{}, fmt.Errorf("STUDIO_TIMEZONE: %w", err)
		}
		p.Timezone = tz
	}
	if _, err := time.Parse("15:04", p.SkipFrom); err != nil {
		return Policy{}, fmt.Errorf("SLOT_SKIP_FROM must be HH:MM: %w", err)
	}
	if _, err := time.Parse("15:04", p.SkipTo); err != nil {
		return Policy{}, fmt.Errorf("SLOT_SKIP_TO must be HH:MM: %w", err)
	}
	return p, nil
}

// DepositRequired reports whether a booking of the given categories at location
// must be paid upfront.
func (p Policy) DepositRequired(categories []string, location string) bool {
	if !containsFold(p.DepositLocations, location) {
		return false
	}
	for _, c := range categories {
		if containsFold(p.DepositCategories, c) {
			return true
		}
	}
	return false
}

// CancellationRefused is the same predicate applied to a stored appointment:
// paid deposits are refunded by hand, so such bookings are cancelled out of band.
func (p Policy) CancellationRefused(categories []string, location string) bool {
	return p.DepositRequired(categories, location)
}

func (p Policy) KnownLocation(location string) bool {
	return slices.Contains(p.Locations, location)
}

// BalanceCents is what the client pays in person.
func (p Policy) BalanceCents(totalCents int64, depositRequired bool) int64 {
	if !depositRequired {
		return totalCents
	}
	return max(totalCents-p.DepositCents, 0)
}

// Now returns the current time in the studio timezone.
func (p Policy) Now(now time.Time) time.Time {
	if p.Timezone == nil {
		return now
	}
	return now.In(p.Timezone)
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
