package app

import "fmt"

// Kind classifies operation failures. The original server actions mixed a
// soft {success:false} envelope with thrown errors for conditions of similar
// severity; every operation here reports through this one type and the HTTP
// layer maps Kind to a status code.
type Kind int

const (
	// KindSoft failures render as {success:false, error} with HTTP 200 so the
	// page keeps working (missing car, empty dealership, degraded lookups).
	KindSoft Kind = iota
	// KindUnauthorized is an unauthenticated or unprovisioned caller.
	KindUnauthorized
	// KindForbidden is an authenticated caller without the required role
	// or ownership.
	KindForbidden
	// KindInvalid is a malformed or unprocessable request.
	KindInvalid
	// KindFatal is an unexpected internal failure.
	KindFatal
)

// Error is the unified operation failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func softErr(message string, cause error) *Error {
	return &Error{Kind: KindSoft, Message: message, Err: cause}
}

func invalidErr(message string) *Error {
	return &Error{Kind: KindInvalid, Message: message}
}

func fatalErr(message string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: message, Err: cause}
}

// Shared failure values. Messages are part of the API contract.
var (
	ErrUnauthorized    = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrUserNotFound    = &Error{Kind: KindUnauthorized, Message: "User not found"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "Forbidden"}
	ErrCarNotFound     = &Error{Kind: KindSoft, Message: "Car not found"}
	ErrBookingNotFound = &Error{Kind: KindSoft, Message: "Booking not found"}
)
