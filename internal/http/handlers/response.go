// Package handlers provides the HTTP handlers of the relay: the two inbound
// webhooks and the dashboard API.
//
// This file holds the response helpers shared by the dashboard endpoints.
// Every dashboard error is an ErrorResponse with a stable code; 5xx errors
// are logged with the request-scoped logger. Webhook endpoints answer in the
// shape their senders expect instead (TwiML for Twilio, a small JSON ack for
// Intercom) and do not use these helpers for their outcomes.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "routing not configured"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wa-intercom-relay/internal/http/middleware"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
	"github.com/tbourn/wa-intercom-relay/internal/services"
)

// ErrorResponse is the error envelope of the dashboard API. RequestID echoes
// X-Request-ID so operators can find the matching log lines.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable code from errors.go
	Code    string `json:"code"    example:"not_found"`
	Message string `json:"message" example:"routing not configured"`
}

// fail aborts the request with an ErrorResponse. Server errors are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail(), used by the router for 404/405.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service error into its HTTP status and code.
// Unrecognized errors are internal.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	fail(c, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrRoutingNotFound),
		errors.Is(err, services.ErrUnknownIntegration),
		errors.Is(err, services.ErrJobNotFound),
		errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrInvalidRouting):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrAlreadyDelivered),
		errors.Is(err, services.ErrInFlight):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrDispatcherStopped), errors.Is(err, services.ErrDispatcherBusy):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// ok writes body as JSON with status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
