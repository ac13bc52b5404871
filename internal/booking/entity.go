package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/catalog"
)

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Estimate is a provisional quote. It stays mutable while unpaid.
type Estimate struct {
	ID                string                   `json:"id"`
	CustomerID        string                   `json:"customer_id"`
	PropertyID        string                   `json:"property_id"`
	From              time.Time                `json:"from"`
	To                time.Time                `json:"to"`
	ResolvedPackageID string                   `json:"resolved_package_id"`
	DisplayName       string                   `json:"display_name"`
	Package           catalog.Descriptor       `json:"package"`
	Nights            int                      `json:"nights"`
	Total             decimal.Decimal          `json:"total"`
	ExplicitTotal     bool                     `json:"explicit_total"`
	PaymentStatus     PaymentStatus            `json:"payment_status"`
	Available         bool                     `json:"available"`
	Suggestions       []availability.DateRange `json:"suggestions,omitempty"`
	BookingID         string                   `json:"booking_id,omitempty"`
	Version           int                      `json:"version"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func (e *Estimate) Range() availability.DateRange {
	return availability.DateRange{From: e.From, To: e.To}
}

// Booking is a paid reservation. Its dates only change through RescheduleBooking.
type Booking struct {
	ID          string                   `json:"id"`
	EstimateID  string                   `json:"estimate_id"`
	CustomerID  string                   `json:"customer_id"`
	PropertyID  string                   `json:"property_id"`
	From        time.Time                `json:"from"`
	To          time.Time                `json:"to"`
	PackageID   string                   `json:"package_id"`
	DisplayName string                   `json:"display_name"`
	Package     catalog.Descriptor       `json:"package"`
	Total       decimal.Decimal          `json:"total"`
	Guests      []string                 `json:"guests"`
	Reschedules []availability.DateRange `json:"reschedules,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

func (b *Booking) Interval() availability.Interval {
	return availability.Interval{
		BookingID:  b.ID,
		PropertyID: b.PropertyID,
		Range:      availability.DateRange{From: b.From, To: b.To},
	}
}

type EventType string

const (
	EventBookingConfirmed   EventType = "booking.confirmed"
	EventBookingRescheduled EventType = "booking.rescheduled"
)

// Event is written in the same transaction as the booking change it describes.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	BookingID  string          `json:"booking_id"`
	EstimateID string          `json:"estimate_id"`
	PropertyID string          `json:"property_id"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"created_at"`
}

type QuoteInput struct {
	CustomerID string
	PropertyID string
	From       time.Time
	To         time.Time
	PackageRef string
	// ExplicitTotal, when set, is stored verbatim instead of the computed price.
	ExplicitTotal *decimal.Decimal
}

type ConfirmInput struct {
	EstimateID string
	Guests     []string
}

type AvailabilityInput struct {
	PropertyID       string
	From             time.Time
	To               time.Time
	ExcludeBookingID string
	// PackageRef is optional; its duration bounds shape the suggestions.
	PackageRef string
}

type RescheduleInput struct {
	BookingID string
	From      time.Time
	To        time.Time
}
