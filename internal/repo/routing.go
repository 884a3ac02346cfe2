package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

// ListRouting returns every routing record, oldest first.
func ListRouting(ctx context.Context, db *gorm.DB) ([]domain.RoutingConfig, error) {
	var out []domain.RoutingConfig
	err := db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// UpsertRouting patches the oldest routing record (creating it when the table
// is empty) and deletes every other record, all inside one transaction.
func UpsertRouting(ctx context.Context, db *gorm.DB, numberTo, workspaceID string, enabled bool) (*domain.RoutingConfig, error) {
	var out domain.RoutingConfig
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []domain.RoutingConfig
		if err := tx.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		now := time.Now().UTC()

		if len(rows) == 0 {
			out = domain.RoutingConfig{
				ID:          uuid.NewString(),
				NumberTo:    numberTo,
				WorkspaceID: workspaceID,
				Enabled:     enabled,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			return tx.Create(&out).Error
		}

		out = rows[0]
		if err := tx.Model(&domain.RoutingConfig{}).
			Where("id = ?", out.ID).
			Updates(map[string]any{
				"number_to":    numberTo,
				"workspace_id": workspaceID,
				"enabled":      enabled,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		out.NumberTo, out.WorkspaceID, out.Enabled, out.UpdatedAt = numberTo, workspaceID, enabled, now

		if len(rows) > 1 {
			extra := make([]string, 0, len(rows)-1)
			for _, r := range rows[1:] {
				extra = append(extra, r.ID)
			}
			if err := tx.Where("id IN ?", extra).Delete(&domain.RoutingConfig{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
