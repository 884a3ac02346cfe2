package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactMapping_UpsertAndGet(t *testing.T) {
	s := NewStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.GetContactMapping(ctx, "ws", "wa:+1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.UpsertContactMapping(ctx, "ws", "wa:+1", "contact_a"))
	require.NoError(t, s.UpsertContactMapping(ctx, "ws", "wa:+1", "contact_b"))

	m, err := s.GetContactMapping(ctx, "ws", "wa:+1")
	require.NoError(t, err)
	assert.Equal(t, "contact_b", m.IntercomContactID)

	_, err = s.GetContactMapping(ctx, "other_ws", "wa:+1")
	assert.True(t, errors.Is(err, ErrNotFound), "mappings are scoped per workspace")
}

func TestConversationMapping_UpsertAndGet(t *testing.T) {
	s := NewStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertConversationMapping(ctx, "ws", "wa:+1", "conv_1"))
	require.NoError(t, s.UpsertConversationMapping(ctx, "ws", "wa:+1", "conv_2"))

	m, err := s.GetConversationMapping(ctx, "ws", "wa:+1")
	require.NoError(t, err)
	assert.Equal(t, "conv_2", m.IntercomConversationID)

	var n int64
	s.DB.Table("conversations_map").Count(&n)
	assert.EqualValues(t, 1, n)
}
