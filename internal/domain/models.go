package domain

import (
	"time"

	"gorm.io/datatypes"
)

// RoutingConfig binds a WhatsApp business number to an Intercom workspace.
// Only one record is expected; the first enabled one is the active route.
type RoutingConfig struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	NumberTo    string    `json:"number_to"    gorm:"type:varchar(32);not null"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:varchar(128);not null"`
	Enabled     bool      `json:"enabled"      gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for RoutingConfig.
func (RoutingConfig) TableName() string { return "routing_configs" }

// IdempotencyRecord guards a relay side effect. The pair (Key, Direction) is
// unique, which lets the store claim a key with a single conditional insert.
//
// Status moves processing -> done or processing -> failed. done is terminal.
// failed is the one state that moves back: a redelivery or an operator
// replay re-claims it as processing with a conditional update, so the key
// still has a single owner at any time.
type IdempotencyRecord struct {
	ID            string            `json:"id"              gorm:"type:char(36);primaryKey"`
	Key           string            `json:"key"             gorm:"type:varchar(255);not null;uniqueIndex:ux_idempotency_key_direction,priority:1"`
	Direction     Direction         `json:"direction"       gorm:"type:varchar(32);not null;uniqueIndex:ux_idempotency_key_direction,priority:2"`
	Status        IdempotencyStatus `json:"status"          gorm:"type:varchar(16);not null"`
	LastErrorCode string            `json:"last_error_code,omitempty" gorm:"type:varchar(64)"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName returns the database table name for IdempotencyRecord.
func (IdempotencyRecord) TableName() string { return "idempotency" }

// Event is one append-only audit row. Rows are listed newest first and may be
// patched exactly once when the outcome of a queued event is known.
type Event struct {
	ID                     string      `json:"id"                       gorm:"type:char(26);primaryKey"`
	Env                    string      `json:"env"                      gorm:"type:varchar(8);not null"`
	WorkspaceID            string      `json:"workspace_id"             gorm:"type:varchar(128);not null"`
	NumberTo               string      `json:"number_to,omitempty"      gorm:"type:varchar(32)"`
	Direction              Direction   `json:"direction"                gorm:"type:varchar(32);not null;index:idx_events_direction"`
	Status                 EventStatus `json:"status"                   gorm:"type:varchar(16);not null"`
	ErrorCode              string      `json:"error_code,omitempty"     gorm:"type:varchar(64)"`
	ErrorDetail            string      `json:"error_detail,omitempty"   gorm:"type:text"`
	TwilioMessageSID       string      `json:"twilio_message_sid,omitempty" gorm:"column:twilio_message_sid;type:varchar(64)"`
	IntercomConversationID string      `json:"intercom_conversation_id,omitempty" gorm:"type:varchar(64)"`
	IdempotencyKey         string      `json:"idempotency_key"          gorm:"type:varchar(255);not null;index:idx_events_key"`
	Timestamp              time.Time   `json:"timestamp"                gorm:"not null;index:idx_events_timestamp"`
	RetryCount             int         `json:"retry_count"              gorm:"not null;default:0"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string { return "events" }

// ContactMapping links an external WhatsApp identity to an Intercom contact.
type ContactMapping struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	WorkspaceID       string    `json:"workspace_id"        gorm:"type:varchar(128);not null;uniqueIndex:ux_contacts_map_external,priority:1"`
	ExternalID        string    `json:"external_id"         gorm:"type:varchar(64);not null;uniqueIndex:ux_contacts_map_external,priority:2"`
	IntercomContactID string    `json:"intercom_contact_id" gorm:"type:varchar(64);not null"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for ContactMapping.
func (ContactMapping) TableName() string { return "contacts_map" }

// ConversationMapping links an external WhatsApp identity to the Intercom
// conversation its messages are appended to.
type ConversationMapping struct {
	ID                     string    `json:"id"                       gorm:"type:char(36);primaryKey"`
	WorkspaceID            string    `json:"workspace_id"             gorm:"type:varchar(128);not null;uniqueIndex:ux_conversations_map_external,priority:1"`
	ExternalID             string    `json:"external_id"              gorm:"type:varchar(64);not null;uniqueIndex:ux_conversations_map_external,priority:2"`
	IntercomConversationID string    `json:"intercom_conversation_id" gorm:"type:varchar(64);not null"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName returns the database table name for ConversationMapping.
func (ConversationMapping) TableName() string { return "conversations_map" }

// IntegrationValidation is the dashboard health row of one integration.
type IntegrationValidation struct {
	ID                    string           `json:"id"                      gorm:"type:char(36);primaryKey"`
	Integration           string           `json:"integration"             gorm:"type:varchar(16);not null;uniqueIndex:ux_integration_validations_name"`
	Status                ValidationStatus `json:"status"                  gorm:"type:varchar(16);not null"`
	LastCheckedAt         *time.Time       `json:"last_checked_at,omitempty"`
	LastErrorCode         string           `json:"last_error_code,omitempty"   gorm:"type:varchar(64)"`
	LastErrorDetail       string           `json:"last_error_detail,omitempty" gorm:"type:text"`
	LastWebhookReceivedAt *time.Time       `json:"last_webhook_received_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// TableName returns the database table name for IntegrationValidation.
func (IntegrationValidation) TableName() string { return "integration_validations" }

// RelayJob is the durable hand-off between webhook ingress and the relay
// worker. Payload holds the serialized inbound message.
type RelayJob struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	MessageSID string         `json:"message_sid" gorm:"column:message_sid;type:varchar(255);not null;uniqueIndex:ux_relay_jobs_message_sid"`
	Payload    datatypes.JSON `json:"payload"     gorm:"not null"`
	Status     JobStatus      `json:"status"      gorm:"type:varchar(16);not null;index:idx_relay_jobs_status"`
	Attempts   int            `json:"attempts"    gorm:"not null;default:0"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName returns the database table name for RelayJob.
func (RelayJob) TableName() string { return "relay_jobs" }

// InboundMessage is the normalized Twilio delivery handed to the relay.
// MessageSID is the correlation key; it is synthesized when Twilio omits it.
// EventID names the queued (or retrying) event of this particular delivery,
// the only row its relay run resolves.
type InboundMessage struct {
	MessageSID  string    `json:"message_sid"`
	EventID     string    `json:"event_id,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Text        string    `json:"text"`
	MediaURLs   []string  `json:"media_urls,omitempty"`
	WorkspaceID string    `json:"workspace_id"`
	ReceivedAt  time.Time `json:"received_at"`
}
