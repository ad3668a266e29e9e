// Package services defines the booking business logic: checkout, the payment
// completion guard, booking tokens, calendar events and reconciliation sweeps.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer via Classify.
package services

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrValidation is wrapped with the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrAmountMismatch is returned when a verified transaction paid less than
	// the session amount or in another currency.
	ErrAmountMismatch = errors.New("amount or currency mismatch")
)

// Authentication errors.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnauthorized     = errors.New("unauthorized")
)

// Not-found errors. ErrInvalidToken is deliberately generic so callers cannot
// probe which half of a session/token pair was wrong.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidToken    = errors.New("invalid token")
)

// State conflicts, reported in the order token verification checks them.
var (
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrTokenUsed           = errors.New("token already used")
	ErrEventAlreadyBooked  = errors.New("event already booked")
	ErrTokenExpired        = errors.New("token expired")
)

// UpstreamError wraps a failed call to an external provider. It is always
// retryable from the caller's point of view.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string { return e.Provider + ": " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persistence: " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// PaymentNotSuccessfulError reports a gateway status other than success on
// the redirect path.
type PaymentNotSuccessfulError struct {
	Status string
}

func (e *PaymentNotSuccessfulError) Error() string {
	return fmt.Sprintf("payment not successful: %s", e.Status)
}

// ErrorKind groups errors by how callers should react.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthentication
	KindNotFound
	KindStateConflict
	KindPaymentNotSuccessful
	KindUpstream
	KindPersistence
)

// Classify returns the kind of err. Unknown errors are KindInternal.
func Classify(err error) ErrorKind {
	var (
		up  *UpstreamError
		per *PersistenceError
		pns *PaymentNotSuccessfulError
	)
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAmountMismatch):
		return KindValidation
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrUnauthorized):
		return KindAuthentication
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvalidToken):
		return KindNotFound
	case errors.Is(err, ErrPaymentNotCompleted), errors.Is(err, ErrTokenUsed),
		errors.Is(err, ErrEventAlreadyBooked), errors.Is(err, ErrTokenExpired):
		return KindStateConflict
	case errors.As(err, &pns):
		return KindPaymentNotSuccessful
	case errors.As(err, &up):
		return KindUpstream
	case errors.As(err, &per):
		return KindPersistence
	}
	return KindInternal
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
