package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/dto"
	"github.com/seatsurge/booking-core/internal/repository"
	"github.com/seatsurge/booking-core/pkg/logger"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// SeatViewService assembles the near-real-time seat map: database rows with
// the overlay substituted per seat. Read-only; it never mutates the record
// store.
type SeatViewService interface {
	GetEventWithSeats(ctx context.Context, eventID int64) (*dto.EventSeatsResponse, error)
}

type seatViewService struct {
	events  repository.EventRepository
	seats   repository.SeatRepository
	overlay repository.SeatStatusRepository
	log     *logger.Logger
}

// NewSeatViewService creates the read assembler
func NewSeatViewService(
	events repository.EventRepository,
	seats repository.SeatRepository,
	overlay repository.SeatStatusRepository,
) SeatViewService {
	return &seatViewService{
		events:  events,
		seats:   seats,
		overlay: overlay,
		log:     logger.Get(),
	}
}

// GetEventWithSeats returns the event's seat map. A seat's status comes from
// the overlay when present, else from the database row. When the overlay
// store is unreachable the database view is served unchanged.
func (s *seatViewService) GetEventWithSeats(ctx context.Context, eventID int64) (*dto.EventSeatsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seat_view.get_event_with_seats")
	defer span.End()
	span.SetAttributes(attribute.Int64("event_id", eventID))

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !event.IsBookable() {
		span.SetStatus(codes.Error, "event not published")
		return nil, domain.ErrEventNotFound
	}

	seats, err := s.seats.FindByEventID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	overlay, err := s.overlay.GetEventOverlay(ctx, eventID)
	if err != nil {
		// degraded read: DB state alone is still correct, just staler
		s.log.Warn("seat status overlay unavailable, serving DB state",
			"event_id", eventID, "error", err)
		overlay = nil
	}
	span.SetAttributes(attribute.Int("overlay_entries", len(overlay)))

	views := make([]dto.SeatView, 0, len(seats))
	summary := map[string]int64{
		domain.SeatStatusAvailable.String(): 0,
		domain.SeatStatusHeld.String():      0,
		domain.SeatStatusBooked.String():    0,
	}
	for _, seat := range seats {
		overlayStatus := overlay[seat.ID]
		if !overlayStatus.IsValid() {
			overlayStatus = ""
		}
		view := dto.SeatViewFromDomain(seat, overlayStatus)
		views = append(views, view)
		summary[view.Status]++
	}

	return &dto.EventSeatsResponse{
		EventID: event.ID,
		Title:   event.Title,
		Venue:   event.Venue,
		Status:  event.Status.String(),
		Seats:   views,
		Summary: summary,
	}, nil
}

var _ SeatViewService = (*seatViewService)(nil)
