package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeatStatus represents the booking state of a seat
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusHeld      SeatStatus = "HELD"
	SeatStatusBooked    SeatStatus = "BOOKED"
)

// IsValid checks if the status is a known SeatStatus
func (s SeatStatus) IsValid() bool {
	switch s {
	case SeatStatusAvailable, SeatStatusHeld, SeatStatusBooked:
		return true
	}
	return false
}

// String returns the string representation of SeatStatus
func (s SeatStatus) String() string {
	return string(s)
}

// Seat is a single sellable seat. Status is mutated only through the
// conditional updates in the seat repository; Version advances on every
// status change.
type Seat struct {
	ID         int64           `json:"id"`
	EventID    int64           `json:"event_id"`
	Section    string          `json:"section"`
	RowLetter  string          `json:"row_letter"`
	SeatNumber int             `json:"seat_number"`
	Price      decimal.Decimal `json:"price"`
	Status     SeatStatus      `json:"status"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TotalPrice sums the prices of the given seats
func TotalPrice(seats []*Seat) decimal.Decimal {
	total := decimal.Zero
	for _, seat := range seats {
		total = total.Add(seat.Price)
	}
	return total
}
