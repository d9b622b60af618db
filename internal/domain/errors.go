package domain

import "errors"

// Domain errors
var (
	// Validation errors
	ErrNoSeatsRequested = errors.New("seat ids cannot be empty")
	ErrTooManySeats     = errors.New("seat count exceeds the per-hold maximum")
	ErrDuplicateSeatIDs = errors.New("seat ids must not contain duplicates")
	ErrCrossEventSeats  = errors.New("all seats must belong to the same event")
	ErrSeatsNotFound    = errors.New("some seats were not found")
	ErrEventNotBookable = errors.New("event is not open for booking")
	ErrMissingHoldToken = errors.New("hold token is required")
	ErrMissingPaymentID = errors.New("payment id is required")
	ErrInvalidCustomer  = errors.New("invalid customer id")

	// Conflict errors
	ErrSeatsUnavailable     = errors.New("one or more seats are currently held by another customer")
	ErrHoldAlreadyConfirmed = errors.New("seat hold is already confirmed")
	ErrHoldNotActive        = errors.New("seat hold is not active")

	// Not-found errors
	ErrHoldNotFound    = errors.New("seat hold not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrEventNotFound   = errors.New("event not found")

	// Expiry errors
	ErrHoldExpired = errors.New("seat hold has expired")

	// Hold-owner errors
	ErrCustomerMismatch = errors.New("hold does not belong to this customer")

	// Infrastructure errors
	ErrDuplicateBookingRef     = errors.New("booking reference already exists")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
)

// IsValidationError reports whether err is a request-validation error (HTTP 400)
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoSeatsRequested) ||
		errors.Is(err, ErrTooManySeats) ||
		errors.Is(err, ErrDuplicateSeatIDs) ||
		errors.Is(err, ErrCrossEventSeats) ||
		errors.Is(err, ErrSeatsNotFound) ||
		errors.Is(err, ErrEventNotBookable) ||
		errors.Is(err, ErrMissingHoldToken) ||
		errors.Is(err, ErrMissingPaymentID) ||
		errors.Is(err, ErrInvalidCustomer) ||
		errors.Is(err, ErrCustomerMismatch)
}

// IsConflictError reports whether err is a state-conflict error. The handler
// answers ErrSeatsUnavailable and ErrHoldAlreadyConfirmed with 409 and
// ErrHoldNotActive with 400.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSeatsUnavailable) ||
		errors.Is(err, ErrHoldAlreadyConfirmed) ||
		errors.Is(err, ErrHoldNotActive)
}

// IsNotFoundError reports whether err is a missing-entity error (HTTP 404)
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrHoldNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsExpiredError reports whether err is an expiry error (HTTP 410)
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrHoldExpired)
}
