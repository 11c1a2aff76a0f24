// Package apperrors defines the business error taxonomy shared by the booking
// core and its transports.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSlotConflict means another confirmed booking already holds the slot.
	ErrSlotConflict = errors.New("slot already booked")
	// ErrClosedDay means the clinic is closed on the requested date.
	ErrClosedDay = errors.New("clinic closed on this day")
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	// ErrValidation marks malformed input. Use Validation to attach a message.
	ErrValidation = errors.New("validation failed")
)

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }

// Validation returns an error matching ErrValidation with a descriptive message.
func Validation(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// Code is the stable machine-readable identifier for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrClosedDay):
		return "closed_day"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrClosedDay):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsBusiness reports whether err is an expected outcome rather than a fault.
func IsBusiness(err error) bool {
	return HTTPStatus(err) != http.StatusInternalServerError
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes err as a JSON envelope. Internal errors are not echoed.
func WriteJSON(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: msg, Code: Code(err)})
}
