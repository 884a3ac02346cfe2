// Package services holds the relay's business logic: routing resolution,
// idempotency, the event log, webhook intake, the relay orchestrator and its
// background dispatcher, and integration health checks.
//
// This file centralizes service-level error values so callers can check them
// with errors.Is. Translation into HTTP status codes happens in the handler
// layer.
package services

import "errors"

var (
	// ErrRoutingNotFound indicates there is no routing record at all.
	ErrRoutingNotFound = errors.New("routing not configured")

	// ErrInvalidRouting is returned by an administrative upsert whose number
	// or workspace is empty after normalization.
	ErrInvalidRouting = errors.New("number_to and workspace_id are required")

	// ErrUnknownIntegration is returned for an integration name other than
	// "twilio" or "intercom".
	ErrUnknownIntegration = errors.New("unknown integration")

	// ErrJobNotFound indicates no durable relay job exists for a message id.
	ErrJobNotFound = errors.New("relay job not found")

	// ErrAlreadyDelivered is returned when replaying a message whose relay
	// already completed.
	ErrAlreadyDelivered = errors.New("message already relayed")

	// ErrInFlight is returned when replaying a message that is still being
	// processed.
	ErrInFlight = errors.New("message relay in progress")

	// ErrDispatcherStopped is returned when work is submitted after Stop.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrDispatcherBusy is returned when the relay queue is full. The durable
	// job stays pending for the next recovery pass or an operator replay.
	ErrDispatcherBusy = errors.New("relay queue full")
)
