package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 200
)

// EventRecorder writes the append-only audit log. Recording never fails the
// caller's flow: store errors are logged and returned for callers that care.
type EventRecorder struct {
	Store EventStore
	Env   string
	Now   func() time.Time
}

// NewEventRecorder constructs an EventRecorder tagging rows with env.
func NewEventRecorder(store EventStore, env string) *EventRecorder {
	return &EventRecorder{Store: store, Env: env, Now: time.Now}
}

func (r *EventRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Build fills the generated fields of ev (id, env, timestamp) without storing it.
func (r *EventRecorder) Build(ev domain.Event) *domain.Event {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.Env == "" {
		ev.Env = r.Env
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	if ev.WorkspaceID == "" {
		ev.WorkspaceID = "unknown"
	}
	return &ev
}

// Record stores a new event.
func (r *EventRecorder) Record(ctx context.Context, ev domain.Event) (*domain.Event, error) {
	e := r.Build(ev)
	if err := r.Store.InsertEvent(ctx, e); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("correlation_id", e.IdempotencyKey).
			Str("status", string(e.Status)).
			Msg("event record failed")
		return nil, err
	}
	return e, nil
}

// Resolve writes the outcome p onto the open event eventID, the row the
// caller's own delivery recorded. When that row is gone or already resolved
// (or eventID is empty) the outcome is appended as a fresh event built from
// fallback, so every run leaves exactly one visible outcome.
func (r *EventRecorder) Resolve(ctx context.Context, eventID string, p repo.EventPatch, fallback domain.Event) (*domain.Event, error) {
	if eventID != "" {
		ev, err := r.Store.PatchEvent(ctx, eventID, p)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("event_id", eventID).
				Str("correlation_id", fallback.IdempotencyKey).
				Msg("event patch failed")
			return nil, err
		}
	}
	fallback.Status = p.Status
	fallback.ErrorCode = p.ErrorCode
	fallback.ErrorDetail = p.ErrorDetail
	fallback.IntercomConversationID = p.IntercomConversationID
	return r.Record(ctx, fallback)
}

// ResolveOpen writes p onto every event for key still awaiting an outcome.
// With none open, one event is appended from fallback.
func (r *EventRecorder) ResolveOpen(ctx context.Context, key string, p repo.EventPatch, fallback domain.Event) error {
	n, err := r.Store.PatchOpenEvents(ctx, key, p)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("correlation_id", key).Msg("event patch failed")
		return err
	}
	if n > 0 {
		return nil
	}
	fallback.IdempotencyKey = key
	_, err = r.Resolve(ctx, "", p, fallback)
	return err
}

// List returns events newest first. limit <= 0 selects the default; larger
// values are capped.
func (r *EventRecorder) List(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	f.Limit = ClampEventsLimit(f.Limit)
	return r.Store.ListEvents(ctx, f)
}

// Stats returns the count and newest timestamp of the event log.
func (r *EventRecorder) Stats(ctx context.Context) (int64, *time.Time, error) {
	return r.Store.EventsStats(ctx)
}

// ClampEventsLimit applies the default and maximum page size.
func ClampEventsLimit(n int) int {
	switch {
	case n <= 0:
		return defaultEventsLimit
	case n > maxEventsLimit:
		return maxEventsLimit
	default:
		return n
	}
}
