package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

// EventFilter narrows ListEvents. Zero values mean "any".
type EventFilter struct {
	Direction domain.Direction
	Status    domain.EventStatus
	Limit     int
}

// EventPatch carries the outcome fields written onto a recorded event.
// Status, ErrorCode and ErrorDetail are always written; the conversation id
// and retry count only when set.
type EventPatch struct {
	Status                 domain.EventStatus
	ErrorCode              string
	ErrorDetail            string
	IntercomConversationID string
	RetryCount             *int
}

// "timestamp" is a keyword in some dialects, so it is always quoted.
var newestFirst = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}

// InsertEvent appends one event row.
func InsertEvent(ctx context.Context, db *gorm.DB, ev *domain.Event) error {
	return db.WithContext(ctx).Create(ev).Error
}

// openStatuses are the event states that still await an outcome. Only open
// events are patched, so a resolved row is never rewritten.
var openStatuses = []domain.EventStatus{domain.EventQueued, domain.EventRetrying}

// GetEvent returns the event with id or ErrNotFound.
func GetEvent(ctx context.Context, db *gorm.DB, id string) (*domain.Event, error) {
	var ev domain.Event
	err := db.WithContext(ctx).Where("id = ?", id).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func patchUpdates(p EventPatch) map[string]any {
	updates := map[string]any{
		"status":       p.Status,
		"error_code":   p.ErrorCode,
		"error_detail": p.ErrorDetail,
	}
	if p.IntercomConversationID != "" {
		updates["intercom_conversation_id"] = p.IntercomConversationID
	}
	if p.RetryCount != nil {
		updates["retry_count"] = *p.RetryCount
	}
	return updates
}

// PatchEvent applies p to the event with id while it is still open. It
// returns ErrNotFound when no open event has that id.
func PatchEvent(ctx context.Context, db *gorm.DB, id string, p EventPatch) (*domain.Event, error) {
	res := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(patchUpdates(p))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetEvent(ctx, db, id)
}

// PatchOpenEvents applies p to every open event with key and reports how
// many rows changed.
func PatchOpenEvents(ctx context.Context, db *gorm.DB, key string, p EventPatch) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Event{}).
		Where("idempotency_key = ? AND status IN ?", key, openStatuses).
		Updates(patchUpdates(p))
	return res.RowsAffected, res.Error
}

// ListEvents returns events newest first. Limit must already be clamped by
// the caller; a non-positive limit returns no rows.
func ListEvents(ctx context.Context, db *gorm.DB, f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		return []domain.Event{}, nil
	}
	q := db.WithContext(ctx).Model(&domain.Event{})
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []domain.Event
	err := q.Order(newestFirst).Order("id DESC").Limit(f.Limit).Find(&out).Error
	return out, err
}

// EventsStats returns the total number of events and the newest timestamp,
// used for conditional responses (ETag) in the HTTP layer. When the table is
// empty the count is 0 and latest is nil.
func EventsStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Event{})
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var newest domain.Event
	if err = db.WithContext(ctx).Order(newestFirst).Take(&newest).Error; err != nil {
		return 0, nil, err
	}
	return count, &newest.Timestamp, nil
}
