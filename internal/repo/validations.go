package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

// ValidationUpdate is the result of an integration health check.
type ValidationUpdate struct {
	Integration     string
	Status          domain.ValidationStatus
	CheckedAt       time.Time
	LastErrorCode   string
	LastErrorDetail string
}

// GetValidation returns the row for integration or ErrNotFound.
func GetValidation(ctx context.Context, db *gorm.DB, integration string) (*domain.IntegrationValidation, error) {
	var v domain.IntegrationValidation
	err := db.WithContext(ctx).Where("integration = ?", integration).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListValidations returns every validation row ordered by integration name.
func ListValidations(ctx context.Context, db *gorm.DB) ([]domain.IntegrationValidation, error) {
	var out []domain.IntegrationValidation
	err := db.WithContext(ctx).Order("integration ASC").Find(&out).Error
	return out, err
}

// SetValidation upserts the health check result for one integration.
// LastWebhookReceivedAt is preserved.
func SetValidation(ctx context.Context, db *gorm.DB, u ValidationUpdate) error {
	checked := u.CheckedAt.UTC()
	row := &domain.IntegrationValidation{
		ID:              uuid.NewString(),
		Integration:     u.Integration,
		Status:          u.Status,
		LastCheckedAt:   &checked,
		LastErrorCode:   u.LastErrorCode,
		LastErrorDetail: u.LastErrorDetail,
		CreatedAt:       checked,
		UpdatedAt:       checked,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "integration"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "last_checked_at", "last_error_code", "last_error_detail", "updated_at",
			}),
		}).
		Create(row).Error
}

// MarkWebhookReceived stamps the last webhook time, inserting an "unknown"
// row when the integration has never been validated.
func MarkWebhookReceived(ctx context.Context, db *gorm.DB, integration string, at time.Time) error {
	at = at.UTC()
	row := &domain.IntegrationValidation{
		ID:                    uuid.NewString(),
		Integration:           integration,
		Status:                domain.ValidationUnknown,
		LastWebhookReceivedAt: &at,
		CreatedAt:             at,
		UpdatedAt:             at,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "integration"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_webhook_received_at", "updated_at"}),
		}).
		Create(row).Error
}
