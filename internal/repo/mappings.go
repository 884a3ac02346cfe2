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

var workspaceExternal = []clause.Column{{Name: "workspace_id"}, {Name: "external_id"}}

// GetContactMapping returns the contact mapping for (workspaceID, externalID)
// or ErrNotFound.
func GetContactMapping(ctx context.Context, db *gorm.DB, workspaceID, externalID string) (*domain.ContactMapping, error) {
	var m domain.ContactMapping
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND external_id = ?", workspaceID, externalID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertContactMapping creates or repoints the contact mapping.
func UpsertContactMapping(ctx context.Context, db *gorm.DB, workspaceID, externalID, contactID string) error {
	now := time.Now().UTC()
	m := &domain.ContactMapping{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		ExternalID:        externalID,
		IntercomContactID: contactID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   workspaceExternal,
			DoUpdates: clause.AssignmentColumns([]string{"intercom_contact_id", "updated_at"}),
		}).
		Create(m).Error
}

// GetConversationMapping returns the conversation mapping for
// (workspaceID, externalID) or ErrNotFound.
func GetConversationMapping(ctx context.Context, db *gorm.DB, workspaceID, externalID string) (*domain.ConversationMapping, error) {
	var m domain.ConversationMapping
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND external_id = ?", workspaceID, externalID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertConversationMapping creates or repoints the conversation mapping.
func UpsertConversationMapping(ctx context.Context, db *gorm.DB, workspaceID, externalID, conversationID string) error {
	now := time.Now().UTC()
	m := &domain.ConversationMapping{
		ID:                     uuid.NewString(),
		WorkspaceID:            workspaceID,
		ExternalID:             externalID,
		IntercomConversationID: conversationID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   workspaceExternal,
			DoUpdates: clause.AssignmentColumns([]string{"intercom_conversation_id", "updated_at"}),
		}).
		Create(m).Error
}
