package dto

import (
	"github.com/shopspring/decimal"

	"github.com/seatsurge/booking-core/internal/domain"
)

// SeatView is one seat in the event seat map, with the overlay-merged status
type SeatView struct {
	ID         int64           `json:"id"`
	Section    string          `json:"section"`
	RowLetter  string          `json:"rowLetter"`
	SeatNumber int             `json:"seatNumber"`
	Price      decimal.Decimal `json:"price"`
	Status     string          `json:"status"`
}

// EventSeatsResponse is the event-with-seats view served to the catalog facade
type EventSeatsResponse struct {
	EventID    int64            `json:"eventId"`
	Title      string           `json:"title"`
	Venue      string           `json:"venue"`
	Status     string           `json:"status"`
	Seats      []SeatView       `json:"seats"`
	Summary    map[string]int64 `json:"summary"`
}

// SeatViewFromDomain converts a seat entity, substituting the overlay status
// when one is present.
func SeatViewFromDomain(s *domain.Seat, overlayStatus domain.SeatStatus) SeatView {
	status := s.Status
	if overlayStatus != "" {
		status = overlayStatus
	}
	return SeatView{
		ID:         s.ID,
		Section:    s.Section,
		RowLetter:  s.RowLetter,
		SeatNumber: s.SeatNumber,
		Price:      s.Price,
		Status:     status.String(),
	}
}
