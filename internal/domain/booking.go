package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusRefunded  BookingStatus = "REFUNDED"
)

// IsValid checks if the status is a known BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// Booking is the purchase record minted when a hold is confirmed
type Booking struct {
	ID               int64           `json:"id"`
	BookingReference string          `json:"booking_reference"`
	CustomerID       int64           `json:"customer_id"`
	EventID          int64           `json:"event_id"`
	SeatIDs          []int64         `json:"seat_ids"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           BookingStatus   `json:"status"`
	PaymentID        string          `json:"payment_id"`
	HoldToken        string          `json:"hold_token"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
