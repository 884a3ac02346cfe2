package services

import (
	"context"
	"errors"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
)

// IdempotencyTracker gates relay side effects so each (key, direction) has
// at most one processing owner.
type IdempotencyTracker struct {
	Store IdempotencyStore
}

// NewIdempotencyTracker constructs an IdempotencyTracker.
func NewIdempotencyTracker(store IdempotencyStore) *IdempotencyTracker {
	return &IdempotencyTracker{Store: store}
}

// Get returns the record for (key, dir) or nil when none exists.
func (t *IdempotencyTracker) Get(ctx context.Context, key string, dir domain.Direction) (*domain.IdempotencyRecord, error) {
	rec, err := t.Store.GetIdempotency(ctx, key, dir)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// Start claims (key, dir). When no record exists one is inserted as
// processing and owned is true. An existing record is returned unchanged with
// owned false, except a failed record, which is atomically re-claimed so a
// redelivery or replay can run again. Concurrent callers never both own a key.
func (t *IdempotencyTracker) Start(ctx context.Context, key string, dir domain.Direction) (rec *domain.IdempotencyRecord, owned bool, err error) {
	rec, inserted, err := t.Store.InsertIdempotencyIfAbsent(ctx, key, dir)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return rec, true, nil
	}
	if rec.Status != domain.IdemFailed {
		return rec, false, nil
	}

	won, err := t.Store.ReclaimFailedIdempotency(ctx, key, dir)
	if err != nil {
		return nil, false, err
	}
	if won {
		rec.Status = domain.IdemProcessing
		rec.LastErrorCode = ""
		return rec, true, nil
	}
	// Somebody else re-claimed it first.
	latest, err := t.Store.GetIdempotency(ctx, key, dir)
	if err != nil {
		return nil, false, err
	}
	return latest, false, nil
}

// MarkDone settles the key as done; missing keys are ignored.
func (t *IdempotencyTracker) MarkDone(ctx context.Context, key string, dir domain.Direction) error {
	return t.Store.MarkIdempotencyDone(ctx, key, dir)
}

// MarkFailed settles the key as failed with code, creating the record if
// needed. A done key stays done. Only the run that owns the key calls it.
func (t *IdempotencyTracker) MarkFailed(ctx context.Context, key string, dir domain.Direction, code string) error {
	return t.Store.MarkIdempotencyFailed(ctx, key, dir, code)
}

// Classify maps an existing record that the caller does not own to the
// duplicate code recorded on the event. It returns "" for records that do not
// block processing.
func Classify(rec *domain.IdempotencyRecord) string {
	if rec == nil {
		return ""
	}
	switch rec.Status {
	case domain.IdemDone:
		return domain.CodeDuplicate
	case domain.IdemProcessing:
		return domain.CodeDuplicateProcessing
	default:
		return ""
	}
}
