package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

// CreateJob persists a pending relay job. A second job for the same message
// sid returns ErrDuplicate.
func CreateJob(ctx context.Context, db *gorm.DB, messageSID string, payload []byte) (*domain.RelayJob, error) {
	now := time.Now().UTC()
	job := &domain.RelayJob{
		ID:         uuid.NewString(),
		MessageSID: messageSID,
		Payload:    datatypes.JSON(payload),
		Status:     domain.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return job, nil
}

// GetJobByMessageSID returns the job for messageSID or ErrNotFound.
func GetJobByMessageSID(ctx context.Context, db *gorm.DB, messageSID string) (*domain.RelayJob, error) {
	var job domain.RelayJob
	err := db.WithContext(ctx).Where("message_sid = ?", messageSID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus sets the job status; moving to running also bumps Attempts.
func UpdateJobStatus(ctx context.Context, db *gorm.DB, id string, status domain.JobStatus) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status == domain.JobRunning {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	res := db.WithContext(ctx).Model(&domain.RelayJob{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs in any of statuses, oldest first.
func ListJobsByStatus(ctx context.Context, db *gorm.DB, statuses ...domain.JobStatus) ([]domain.RelayJob, error) {
	var out []domain.RelayJob
	err := db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
