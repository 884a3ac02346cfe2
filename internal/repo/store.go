package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

// Store binds the repository functions to one *gorm.DB so they can satisfy
// the narrow store interfaces declared by the service layer.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// ---- routing ----

func (s *Store) ListRouting(ctx context.Context) ([]domain.RoutingConfig, error) {
	return ListRouting(ctx, s.DB)
}

func (s *Store) UpsertRouting(ctx context.Context, numberTo, workspaceID string, enabled bool) (*domain.RoutingConfig, error) {
	return UpsertRouting(ctx, s.DB, numberTo, workspaceID, enabled)
}

// ---- idempotency ----

func (s *Store) GetIdempotency(ctx context.Context, key string, dir domain.Direction) (*domain.IdempotencyRecord, error) {
	return GetIdempotency(ctx, s.DB, key, dir)
}

func (s *Store) InsertIdempotencyIfAbsent(ctx context.Context, key string, dir domain.Direction) (*domain.IdempotencyRecord, bool, error) {
	return InsertIdempotencyIfAbsent(ctx, s.DB, key, dir)
}

func (s *Store) ReclaimFailedIdempotency(ctx context.Context, key string, dir domain.Direction) (bool, error) {
	return ReclaimFailedIdempotency(ctx, s.DB, key, dir)
}

func (s *Store) MarkIdempotencyDone(ctx context.Context, key string, dir domain.Direction) error {
	return MarkIdempotencyDone(ctx, s.DB, key, dir)
}

func (s *Store) MarkIdempotencyFailed(ctx context.Context, key string, dir domain.Direction, code string) error {
	return MarkIdempotencyFailed(ctx, s.DB, key, dir, code)
}

func (s *Store) ListStaleIdempotency(ctx context.Context, cutoff time.Time) ([]domain.IdempotencyRecord, error) {
	return ListStaleIdempotency(ctx, s.DB, cutoff)
}

// ---- events ----

func (s *Store) InsertEvent(ctx context.Context, ev *domain.Event) error {
	return InsertEvent(ctx, s.DB, ev)
}

func (s *Store) PatchEvent(ctx context.Context, id string, p EventPatch) (*domain.Event, error) {
	return PatchEvent(ctx, s.DB, id, p)
}

func (s *Store) PatchOpenEvents(ctx context.Context, key string, p EventPatch) (int64, error) {
	return PatchOpenEvents(ctx, s.DB, key, p)
}

func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	return ListEvents(ctx, s.DB, f)
}

func (s *Store) EventsStats(ctx context.Context) (int64, *time.Time, error) {
	return EventsStats(ctx, s.DB)
}

// ---- mappings ----

func (s *Store) GetContactMapping(ctx context.Context, workspaceID, externalID string) (*domain.ContactMapping, error) {
	return GetContactMapping(ctx, s.DB, workspaceID, externalID)
}

func (s *Store) UpsertContactMapping(ctx context.Context, workspaceID, externalID, contactID string) error {
	return UpsertContactMapping(ctx, s.DB, workspaceID, externalID, contactID)
}

func (s *Store) GetConversationMapping(ctx context.Context, workspaceID, externalID string) (*domain.ConversationMapping, error) {
	return GetConversationMapping(ctx, s.DB, workspaceID, externalID)
}

func (s *Store) UpsertConversationMapping(ctx context.Context, workspaceID, externalID, conversationID string) error {
	return UpsertConversationMapping(ctx, s.DB, workspaceID, externalID, conversationID)
}

// ---- validations ----

func (s *Store) GetValidation(ctx context.Context, integration string) (*domain.IntegrationValidation, error) {
	return GetValidation(ctx, s.DB, integration)
}

func (s *Store) ListValidations(ctx context.Context) ([]domain.IntegrationValidation, error) {
	return ListValidations(ctx, s.DB)
}

func (s *Store) SetValidation(ctx context.Context, u ValidationUpdate) error {
	return SetValidation(ctx, s.DB, u)
}

func (s *Store) MarkWebhookReceived(ctx context.Context, integration string, at time.Time) error {
	return MarkWebhookReceived(ctx, s.DB, integration, at)
}

// ---- jobs ----

func (s *Store) GetJobByMessageSID(ctx context.Context, messageSID string) (*domain.RelayJob, error) {
	return GetJobByMessageSID(ctx, s.DB, messageSID)
}

func (s *Store) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error {
	return UpdateJobStatus(ctx, s.DB, id, status)
}

func (s *Store) ListJobsByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.RelayJob, error) {
	return ListJobsByStatus(ctx, s.DB, statuses...)
}

// EnqueueInbound records the queued event and its relay job atomically, so
// an acknowledged webhook always has durable work behind it. A redelivery of
// a message that already has a job returns the existing job and created=false;
// the queued event is still recorded.
func (s *Store) EnqueueInbound(ctx context.Context, ev *domain.Event, messageSID string, payload []byte) (job *domain.RelayJob, created bool, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := InsertEvent(ctx, tx, ev); err != nil {
			return err
		}
		existing, err := GetJobByMessageSID(ctx, tx, messageSID)
		switch {
		case err == nil:
			job = existing
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}
		job, err = CreateJob(ctx, tx, messageSID, payload)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}
