package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/pkg/response"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// SeatViewHandler serves the overlay-merged seat map
type SeatViewHandler struct {
	seatViewService service.SeatViewService
}

// NewSeatViewHandler creates a new seat view handler
func NewSeatViewHandler(seatViewService service.SeatViewService) *SeatViewHandler {
	return &SeatViewHandler{seatViewService: seatViewService}
}

// GetEventSeats handles GET /api/events/:id/seats
func (h *SeatViewHandler) GetEventSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.seat_view.get_event_seats")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		span.SetStatus(codes.Error, "invalid event id")
		response.BadRequest(c, "INVALID_REQUEST", "event id must be an integer")
		return
	}
	span.SetAttributes(attribute.Int64("event_id", eventID))

	view, err := h.seatViewService.GetEventWithSeats(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if domain.IsNotFoundError(err) {
			response.NotFound(c, "NOT_FOUND", err.Error())
			return
		}
		_ = c.Error(err)
		response.InternalError(c)
		return
	}

	response.OK(c, view)
}
