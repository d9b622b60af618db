package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/dto"
	"github.com/seatsurge/booking-core/internal/service"
	"github.com/seatsurge/booking-core/pkg/middleware"
	"github.com/seatsurge/booking-core/pkg/response"
	"github.com/seatsurge/booking-core/pkg/retry"
	"github.com/seatsurge/booking-core/pkg/telemetry"
)

// IdempotencyKeyHeader carries the optional client idempotency key
const IdempotencyKeyHeader = "X-Idempotency-Key"

// BookingHandler exposes the hold orchestrator over HTTP
type BookingHandler struct {
	holdService service.HoldService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(holdService service.HoldService) *BookingHandler {
	return &BookingHandler{holdService: holdService}
}

// PlaceHold handles POST /api/bookings/hold
func (h *BookingHandler) PlaceHold(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.place_hold")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.PlaceHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	req.IdempotencyKey = c.GetHeader(IdempotencyKeyHeader)

	// an authenticated identity always wins over the body
	if authed := middleware.CustomerID(c); authed > 0 {
		req.CustomerID = authed
	}

	span.SetAttributes(
		attribute.Int64("customer_id", req.CustomerID),
		attribute.Int64("event_id", req.EventID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	result, err := h.holdService.PlaceHold(ctx, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("hold_token", result.HoldToken))
	response.Created(c, result)
}

// ConfirmBooking handles POST /api/bookings/:token/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	req.HoldToken = c.Param("token")

	if authed := middleware.CustomerID(c); authed > 0 {
		req.CustomerID = authed
	}

	span.SetAttributes(attribute.String("hold_token", req.HoldToken))

	booking, err := h.holdService.ConfirmBooking(ctx, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_reference", booking.BookingReference))
	response.OK(c, booking)
}

// CancelHold handles DELETE /api/bookings/hold/:token?customerId=
func (h *BookingHandler) CancelHold(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel_hold")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	holdToken := c.Param("token")

	customerID := middleware.CustomerID(c)
	if customerID == 0 {
		parsed, err := strconv.ParseInt(c.Query("customerId"), 10, 64)
		if err != nil {
			span.SetStatus(codes.Error, "invalid customer id")
			response.BadRequest(c, "INVALID_REQUEST", "customerId query parameter is required")
			return
		}
		customerID = parsed
	}

	span.SetAttributes(
		attribute.String("hold_token", holdToken),
		attribute.Int64("customer_id", customerID),
	)

	if err := h.holdService.CancelHold(ctx, holdToken, customerID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	response.NoContent(c)
}

// GetSeatHold handles GET /api/bookings/hold/:token
func (h *BookingHandler) GetSeatHold(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get_hold")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	hold, err := h.holdService.GetSeatHold(ctx, c.Param("token"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	response.OK(c, hold)
}

// GetBooking handles GET /api/bookings/:token (booking reference lookup)
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get_booking")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	booking, err := h.holdService.GetBooking(ctx, c.Param("token"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	response.OK(c, booking)
}

// handleError maps domain errors onto the HTTP error taxonomy
func (h *BookingHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSeatsUnavailable):
		response.Conflict(c, "SEATS_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrHoldAlreadyConfirmed):
		response.Conflict(c, "ALREADY_CONFIRMED", err.Error())
	case errors.Is(err, domain.ErrHoldNotActive):
		response.BadRequest(c, "HOLD_NOT_ACTIVE", err.Error())
	case domain.IsExpiredError(err):
		response.Gone(c, "HOLD_EXPIRED", err.Error())
	case domain.IsNotFoundError(err):
		response.NotFound(c, "NOT_FOUND", err.Error())
	case domain.IsValidationError(err):
		response.BadRequest(c, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, retry.ErrMaxRetriesExceeded):
		// transient errors are retried inside the orchestrator; only an
		// exhausted retry budget surfaces, and it surfaces as 503
		response.ServiceUnavailable(c, "TRANSIENT", "temporarily unable to process the request, please retry")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
