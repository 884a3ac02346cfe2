package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate indicates a unique constraint rejected an insert.
	ErrDuplicate = errors.New("duplicate")
)

// GetIdempotency returns the record for (key, direction) or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, key string, dir domain.Direction) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("key = ? AND direction = ?", key, dir).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertIdempotencyIfAbsent atomically inserts a processing record. When a
// record already exists it is returned unchanged and inserted is false.
// Exactly one concurrent caller observes inserted == true for a given pair.
func InsertIdempotencyIfAbsent(ctx context.Context, db *gorm.DB, key string, dir domain.Direction) (rec *domain.IdempotencyRecord, inserted bool, err error) {
	now := time.Now().UTC()
	fresh := &domain.IdempotencyRecord{
		ID:        uuid.NewString(),
		Key:       key,
		Direction: dir,
		Status:    domain.IdemProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "direction"}},
			DoNothing: true,
		}).
		Create(fresh)
	if res.Error != nil && !isUniqueViolation(res.Error) {
		return nil, false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return fresh, true, nil
	}

	existing, err := GetIdempotency(ctx, db, key, dir)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ReclaimFailedIdempotency moves a failed record back to processing with a
// conditional update. It reports whether this caller won the transition.
func ReclaimFailedIdempotency(ctx context.Context, db *gorm.DB, key string, dir domain.Direction) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("key = ? AND direction = ? AND status = ?", key, dir, domain.IdemFailed).
		Updates(map[string]any{
			"status":          domain.IdemProcessing,
			"last_error_code": "",
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkIdempotencyDone sets the record to done. A missing record is a no-op.
func MarkIdempotencyDone(ctx context.Context, db *gorm.DB, key string, dir domain.Direction) error {
	return db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("key = ? AND direction = ?", key, dir).
		Updates(map[string]any{
			"status":     domain.IdemDone,
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkIdempotencyFailed sets the record to failed with code, inserting a
// failed record when none exists. A done record is terminal and left as is.
func MarkIdempotencyFailed(ctx context.Context, db *gorm.DB, key string, dir domain.Direction, code string) error {
	now := time.Now().UTC()
	rec := &domain.IdempotencyRecord{
		ID:            uuid.NewString(),
		Key:           key,
		Direction:     dir,
		Status:        domain.IdemFailed,
		LastErrorCode: code,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "direction"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_error_code", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "idempotency.status <> ?", Vars: []any{domain.IdemDone}},
			}},
		}).
		Create(rec).Error
}

// ListStaleIdempotency returns records still processing that were last
// touched before cutoff.
func ListStaleIdempotency(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.IdempotencyRecord, error) {
	var out []domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.IdemProcessing, cutoff).
		Order("updated_at ASC").
		Find(&out).Error
	return out, err
}

// isUniqueViolation tolerates drivers that do not translate constraint errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
