package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Booking core errors.
	ErrSlotUnavailable    = New("SLOT_UNAVAILABLE", http.StatusConflict, "slot is no longer available")
	ErrInvalidTransition  = New("INVALID_TRANSITION", http.StatusConflict, "transition not permitted from current status")
	ErrTooEarly           = New("TOO_EARLY", http.StatusConflict, "session has not ended yet")
	ErrBadTime            = New("BAD_TIME", http.StatusUnprocessableEntity, "requested time is not bookable")
	ErrDateOutOfWindow    = New("DATE_OUT_OF_WINDOW", http.StatusUnprocessableEntity, "date outside the booking window")
	ErrAlreadyPaid        = New("ALREADY_PAID", http.StatusConflict, "booking already has a successful payment")
	ErrNotRefundable      = New("NOT_REFUNDABLE", http.StatusConflict, "booking is not refundable")
	ErrBadSignature       = New("BAD_SIGNATURE", http.StatusBadRequest, "webhook signature verification failed")
	ErrMeetingUnavailable = New("MEETING_PROVISIONING_UNAVAILABLE", http.StatusServiceUnavailable, "video provider is unavailable")
	ErrPaymentUnavailable = New("PAYMENT_PROVIDER_UNAVAILABLE", http.StatusServiceUnavailable, "card processor is unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
