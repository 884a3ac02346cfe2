// Package domain defines the persistence models and the shared vocabulary
// (directions, statuses, error codes) of the relay. These types are mapped
// with GORM and used by the repository, service and HTTP layers.
package domain

// Direction is the relay direction of an event or idempotency record.
type Direction string

const (
	DirectionTwilioToIntercom Direction = "twilio_to_intercom"
	DirectionIntercomToTwilio Direction = "intercom_to_twilio"
)

// EventStatus is the lifecycle state recorded on an event.
type EventStatus string

const (
	EventQueued   EventStatus = "queued"
	EventOK       EventStatus = "ok"
	EventRetrying EventStatus = "retrying"
	EventFailed   EventStatus = "failed"
	EventDropped  EventStatus = "dropped"
)

// IdempotencyStatus is the processing state of a deduplication key.
type IdempotencyStatus string

const (
	IdemProcessing IdempotencyStatus = "processing"
	IdemDone       IdempotencyStatus = "done"
	IdemFailed     IdempotencyStatus = "failed"
)

// ValidationStatus is the last known health of an integration.
type ValidationStatus string

const (
	ValidationUnknown ValidationStatus = "unknown"
	ValidationOK      ValidationStatus = "ok"
	ValidationFailed  ValidationStatus = "failed"
)

// Integration names used for validation rows and log fields.
const (
	IntegrationTwilio   = "twilio"
	IntegrationIntercom = "intercom"
)

// JobStatus is the state of a durable relay job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobAbandoned JobStatus = "abandoned"
)

// Error codes stored on events and idempotency records.
const (
	CodeSignatureInvalid    = "signature_invalid"
	CodeRoutingNotFound     = "routing_not_found"
	CodeRoutingDisabled     = "routing_disabled"
	CodeRoutingMismatch     = "routing_mismatch"
	CodeMissingRouting      = "missing_routing"
	CodeUnsupportedTopic    = "unsupported_topic"
	CodeDuplicate           = "duplicate"
	CodeDuplicateProcessing = "duplicate_processing"
	CodeAuthInvalid         = "auth_invalid"
	CodeRateLimited         = "rate_limited"
	CodeIntercomError       = "intercom_error"
	CodeUnknown             = "unknown"
)

// TopicAdminReplied is the only Intercom webhook topic the relay accepts.
const TopicAdminReplied = "conversation.admin.replied"
