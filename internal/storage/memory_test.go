package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/deskmate/internal/domain"
)

func TestMemoryConnectorConfigStore_GetBeforeUpsert(t *testing.T) {
	store := NewMemoryConnectorConfigStore()

	_, err := store.GetConnectorConfig(context.Background(), domain.ConnectorTypeGmail)
	require.ErrorIs(t, err, domain.ErrConnectorNotConfigured)
}

func TestMemoryConnectorConfigStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectorConfigStore()

	err := store.UpsertConnectorConfig(ctx, domain.ConnectorConfig{
		Type:             domain.ConnectorTypeGmail,
		EncryptedPayload: "first",
		Enabled:          true,
	})
	require.NoError(t, err)

	err = store.UpsertConnectorConfig(ctx, domain.ConnectorConfig{
		Type:             domain.ConnectorTypeGmail,
		EncryptedPayload: "second",
		Enabled:          false,
	})
	require.NoError(t, err)

	config, err := store.GetConnectorConfig(ctx, domain.ConnectorTypeGmail)
	require.NoError(t, err)
	assert.Equal(t, "second", config.EncryptedPayload)
	assert.False(t, config.Enabled)
	assert.False(t, config.UpdatedAt.IsZero())
}

func TestMemoryConnectorConfigStore_ListSortedByType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectorConfigStore()

	for _, connectorType := range []domain.ConnectorType{
		domain.ConnectorTypeYahooMail,
		domain.ConnectorTypeGmail,
		domain.ConnectorTypeOutlook,
	} {
		err := store.UpsertConnectorConfig(ctx, domain.ConnectorConfig{Type: connectorType})
		require.NoError(t, err)
	}

	configs, err := store.ListConnectorConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 3)

	types := []domain.ConnectorType{configs[0].Type, configs[1].Type, configs[2].Type}
	assert.Equal(t, []domain.ConnectorType{
		domain.ConnectorTypeGmail,
		domain.ConnectorTypeOutlook,
		domain.ConnectorTypeYahooMail,
	}, types)
}

func TestMemoryAuthorizationStateStore_ConsumeIsSingleUse(t *testing.T) {
	store := NewMemoryAuthorizationStateStore()

	err := store.Put(domain.AuthorizationState{
		Nonce:         "nonce-1",
		ConnectorType: domain.ConnectorTypeGmail,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)

	state, ok := store.Consume("nonce-1")
	require.True(t, ok)
	assert.Equal(t, domain.ConnectorTypeGmail, state.ConnectorType)

	_, ok = store.Consume("nonce-1")
	assert.False(t, ok)
}

func TestMemoryAuthorizationStateStore_ExpiredStateNotConsumable(t *testing.T) {
	store := NewMemoryAuthorizationStateStore()

	err := store.Put(domain.AuthorizationState{
		Nonce:         "nonce-stale",
		ConnectorType: domain.ConnectorTypeGmail,
		CreatedAt:     time.Now().Add(-11 * time.Minute),
	})
	require.NoError(t, err)

	_, ok := store.Consume("nonce-stale")
	assert.False(t, ok)
}

func TestMemoryMessageStore_ConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()

	_, err := store.GetConversation(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrConversationNotFound)

	err = store.CreateConversation(ctx, domain.Conversation{ID: "conv-1"})
	require.NoError(t, err)

	err = store.UpdateConversationTitle(ctx, "conv-1", "Inbox triage")
	require.NoError(t, err)

	conversation, err := store.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Inbox triage", conversation.Title)
}

func TestMemoryMessageStore_MessagesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()

	for _, message := range []domain.ChatMessage{
		{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "hello"},
		{ID: "m2", ConversationID: "conv-1", Role: "assistant", Content: "hi"},
		{ID: "m3", ConversationID: "conv-2", Role: "user", Content: "other"},
	} {
		require.NoError(t, store.AppendMessage(ctx, message))
	}

	messages, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
}

func TestMemoryMessageStore_UpdateMessageContent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()

	require.NoError(t, store.AppendMessage(ctx, domain.ChatMessage{
		ID:             "m1",
		ConversationID: "conv-1",
		Role:           "assistant",
		Content:        "draft",
	}))

	err := store.UpdateMessageContent(ctx, "m1", "final")
	require.NoError(t, err)

	messages, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "final", messages[0].Content)

	err = store.UpdateMessageContent(ctx, "missing", "x")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
}
