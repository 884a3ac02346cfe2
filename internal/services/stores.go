package services

import (
	"context"
	"time"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

// The interfaces below are the capability sets each service needs from
// persistence. *repo.Store satisfies all of them; tests may pass fakes.

// RoutingStore reads and rewrites routing records.
type RoutingStore interface {
	ListRouting(ctx context.Context) ([]domain.RoutingConfig, error)
	UpsertRouting(ctx context.Context, numberTo, workspaceID string, enabled bool) (*domain.RoutingConfig, error)
}

// IdempotencyStore claims and settles deduplication keys.
type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, key string, dir domain.Direction) (*domain.IdempotencyRecord, error)
	InsertIdempotencyIfAbsent(ctx context.Context, key string, dir domain.Direction) (*domain.IdempotencyRecord, bool, error)
	ReclaimFailedIdempotency(ctx context.Context, key string, dir domain.Direction) (bool, error)
	MarkIdempotencyDone(ctx context.Context, key string, dir domain.Direction) error
	MarkIdempotencyFailed(ctx context.Context, key string, dir domain.Direction, code string) error
	ListStaleIdempotency(ctx context.Context, cutoff time.Time) ([]domain.IdempotencyRecord, error)
}

// EventStore appends, patches and lists audit events.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *domain.Event) error
	PatchEvent(ctx context.Context, id string, p repo.EventPatch) (*domain.Event, error)
	PatchOpenEvents(ctx context.Context, key string, p repo.EventPatch) (int64, error)
	ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error)
	EventsStats(ctx context.Context) (int64, *time.Time, error)
}

// MappingStore persists local-to-Intercom identity mappings.
type MappingStore interface {
	GetContactMapping(ctx context.Context, workspaceID, externalID string) (*domain.ContactMapping, error)
	UpsertContactMapping(ctx context.Context, workspaceID, externalID, contactID string) error
	GetConversationMapping(ctx context.Context, workspaceID, externalID string) (*domain.ConversationMapping, error)
	UpsertConversationMapping(ctx context.Context, workspaceID, externalID, conversationID string) error
}

// ValidationStore persists integration health rows.
type ValidationStore interface {
	GetValidation(ctx context.Context, integration string) (*domain.IntegrationValidation, error)
	ListValidations(ctx context.Context) ([]domain.IntegrationValidation, error)
	SetValidation(ctx context.Context, u repo.ValidationUpdate) error
	MarkWebhookReceived(ctx context.Context, integration string, at time.Time) error
}

// JobStore persists durable relay jobs.
type JobStore interface {
	EnqueueInbound(ctx context.Context, ev *domain.Event, messageSID string, payload []byte) (*domain.RelayJob, bool, error)
	GetJobByMessageSID(ctx context.Context, messageSID string) (*domain.RelayJob, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error
	ListJobsByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.RelayJob, error)
}

var (
	_ RoutingStore     = (*repo.Store)(nil)
	_ IdempotencyStore = (*repo.Store)(nil)
	_ EventStore       = (*repo.Store)(nil)
	_ MappingStore     = (*repo.Store)(nil)
	_ ValidationStore  = (*repo.Store)(nil)
	_ JobStore         = (*repo.Store)(nil)
)
