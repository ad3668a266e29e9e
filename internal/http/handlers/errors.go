// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic error codes returned in the `code` field
// of error envelopes and the mapping from service errors to HTTP statuses.
// Clients branch on codes; messages are for humans.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror HTTP status semantics.
//   - Booking-token codes name the exact verification failure so the
//     scheduling page can show a specific message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "token_expired",
//	  "message": "token expired"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"

	// Domain-specific:
	ErrCodeInvalidSignature     = "invalid_signature"
	ErrCodeAmountMismatch       = "amount_mismatch"
	ErrCodeSessionNotFound      = "session_not_found"
	ErrCodeInvalidToken         = "invalid_token"
	ErrCodePaymentNotCompleted  = "payment_not_completed"
	ErrCodeTokenUsed            = "token_used"
	ErrCodeEventAlreadyBooked   = "event_already_booked"
	ErrCodeTokenExpired         = "token_expired"
	ErrCodePaymentNotSuccessful = "payment_not_successful"
	ErrCodeUpstream             = "upstream_unavailable"
	ErrCodeStorage              = "storage_unavailable"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch services.Classify(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindAuthentication:
		return http.StatusUnauthorized
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindStateConflict:
		return http.StatusForbidden
	case services.KindPaymentNotSuccessful:
		return http.StatusPaymentRequired
	case services.KindUpstream:
		return http.StatusBadGateway
	case services.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// codeFor maps a service error to the most specific error code.
func codeFor(err error) string {
	for _, m := range []struct {
		target error
		code   string
	}{
		{services.ErrAmountMismatch, ErrCodeAmountMismatch},
		{services.ErrInvalidSignature, ErrCodeInvalidSignature},
		{services.ErrSessionNotFound, ErrCodeSessionNotFound},
		{services.ErrInvalidToken, ErrCodeInvalidToken},
		{services.ErrPaymentNotCompleted, ErrCodePaymentNotCompleted},
		{services.ErrTokenUsed, ErrCodeTokenUsed},
		{services.ErrEventAlreadyBooked, ErrCodeEventAlreadyBooked},
		{services.ErrTokenExpired, ErrCodeTokenExpired},
	} {
		if errors.Is(err, m.target) {
			return m.code
		}
	}
	switch services.Classify(err) {
	case services.KindValidation:
		return ErrCodeBadRequest
	case services.KindAuthentication:
		return ErrCodeUnauthorized
	case services.KindPaymentNotSuccessful:
		return ErrCodePaymentNotSuccessful
	case services.KindUpstream:
		return ErrCodeUpstream
	case services.KindPersistence:
		return ErrCodeStorage
	}
	return ErrCodeInternal
}

// messageFor returns a client-safe message. Server-side failures get a
// generic text; the detail goes to the log only.
func messageFor(err error, status int) string {
	switch {
	case status == http.StatusBadGateway:
		return "a provider is temporarily unavailable, please retry"
	case status >= http.StatusInternalServerError:
		return "internal server error"
	}
	return err.Error()
}

// failErr writes the error envelope for a service error.
func failErr(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, status, codeFor(err), messageFor(err, status))
}
