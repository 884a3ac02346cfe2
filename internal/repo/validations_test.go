package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

func TestMarkWebhookReceived_InsertsUnknownThenPatches(t *testing.T) {
	s := NewStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.GetValidation(ctx, domain.IntegrationTwilio)
	assert.True(t, errors.Is(err, ErrNotFound))

	first := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	require.NoError(t, s.MarkWebhookReceived(ctx, domain.IntegrationTwilio, first))

	v, err := s.GetValidation(ctx, domain.IntegrationTwilio)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationUnknown, v.Status)
	require.NotNil(t, v.LastWebhookReceivedAt)
	assert.True(t, v.LastWebhookReceivedAt.Equal(first))

	require.NoError(t, s.SetValidation(ctx, ValidationUpdate{
		Integration: domain.IntegrationTwilio, Status: domain.ValidationOK, CheckedAt: time.Now(),
	}))
	second := first.Add(30 * time.Second)
	require.NoError(t, s.MarkWebhookReceived(ctx, domain.IntegrationTwilio, second))

	v, err = s.GetValidation(ctx, domain.IntegrationTwilio)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationOK, v.Status, "receipt must not reset the checked status")
	assert.True(t, v.LastWebhookReceivedAt.Equal(second))
}

func TestSetValidation_PreservesWebhookTimestamp(t *testing.T) {
	s := NewStore(newTestDB(t))
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.MarkWebhookReceived(ctx, domain.IntegrationIntercom, at))
	require.NoError(t, s.SetValidation(ctx, ValidationUpdate{
		Integration:     domain.IntegrationIntercom,
		Status:          domain.ValidationFailed,
		CheckedAt:       at,
		LastErrorCode:   domain.CodeAuthInvalid,
		LastErrorDetail: "401",
	}))

	rows, err := s.ListValidations(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.ValidationFailed, rows[0].Status)
	assert.Equal(t, domain.CodeAuthInvalid, rows[0].LastErrorCode)
	require.NotNil(t, rows[0].LastWebhookReceivedAt)
	assert.True(t, rows[0].LastWebhookReceivedAt.Equal(at))
}
