package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seatsurge/booking-core/internal/domain"
)

// PlaceHoldRequest is the body of POST /api/bookings/hold
type PlaceHoldRequest struct {
	CustomerID          int64   `json:"customerId" binding:"required"`
	EventID             int64   `json:"eventId" binding:"required"`
	SeatIDs             []int64 `json:"seatIds" binding:"required"`
	HoldDurationMinutes int     `json:"holdDurationMinutes,omitempty"`

	// IdempotencyKey comes from the X-Idempotency-Key header, not the body
	IdempotencyKey string `json:"-"`
}

// HoldResponse is returned when a hold is placed
type HoldResponse struct {
	HoldToken            string          `json:"holdToken"`
	CustomerID           int64           `json:"customerId"`
	EventID              int64           `json:"eventId"`
	EventTitle           string          `json:"eventTitle"`
	SeatCount            int             `json:"seatCount"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	ExpiresAt            time.Time       `json:"expiresAt"`
	TimeRemainingSeconds int64           `json:"timeRemainingSeconds"`
	Status               string          `json:"status"`
	CreatedAt            time.Time       `json:"createdAt"`
	Message              string          `json:"message"`
	Degraded             bool            `json:"degraded,omitempty"`
}

// ConfirmBookingRequest is the body of POST /api/bookings/{holdToken}/confirm
type ConfirmBookingRequest struct {
	HoldToken  string `json:"holdToken"`
	PaymentID  string `json:"paymentId" binding:"required"`
	CustomerID int64  `json:"customerId" binding:"required"`
}

// BookingResponse is the booking DTO returned by confirm and lookup
type BookingResponse struct {
	BookingReference string          `json:"bookingReference"`
	CustomerID       int64           `json:"customerId"`
	EventID          int64           `json:"eventId"`
	SeatIDs          []int64         `json:"seatIds"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Status           string          `json:"status"`
	PaymentID        string          `json:"paymentId"`
	HoldToken        string          `json:"holdToken"`
	ConfirmedAt      *time.Time      `json:"confirmedAt,omitempty"`
	CancelledAt      *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// SeatHoldDto is the hold lookup DTO
type SeatHoldDto struct {
	HoldToken            string    `json:"holdToken"`
	CustomerID           int64     `json:"customerId"`
	EventID              int64     `json:"eventId"`
	SeatIDs              []int64   `json:"seatIds"`
	SeatCount            int       `json:"seatCount"`
	ExpiresAt            time.Time `json:"expiresAt"`
	TimeRemainingSeconds int64     `json:"timeRemainingSeconds"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"createdAt"`
}

// BookingFromDomain converts a booking entity to its DTO
func BookingFromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		BookingReference: b.BookingReference,
		CustomerID:       b.CustomerID,
		EventID:          b.EventID,
		SeatIDs:          b.SeatIDs,
		TotalAmount:      b.TotalAmount,
		Status:           b.Status.String(),
		PaymentID:        b.PaymentID,
		HoldToken:        b.HoldToken,
		ConfirmedAt:      b.ConfirmedAt,
		CancelledAt:      b.CancelledAt,
		CreatedAt:        b.CreatedAt,
	}
}

// HoldFromDomain converts a hold entity to its DTO
func HoldFromDomain(h *domain.SeatHold, now time.Time) *SeatHoldDto {
	return &SeatHoldDto{
		HoldToken:            h.HoldToken,
		CustomerID:           h.CustomerID,
		EventID:              h.EventID,
		SeatIDs:              h.SeatIDs,
		SeatCount:            h.SeatCount,
		ExpiresAt:            h.ExpiresAt,
		TimeRemainingSeconds: h.TimeRemaining(now),
		Status:               h.Status.String(),
		CreatedAt:            h.CreatedAt,
	}
}
