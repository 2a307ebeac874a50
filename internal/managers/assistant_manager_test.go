package managers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/internal/storage"
	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/tool"
	"github.com/deskmate/deskmate/pkg/ai/types"
)

// recordingModel answers every stream with fixed text and records the tools
// offered on each request.
type recordingModel struct {
	mu        sync.Mutex
	text      string
	toolNames [][]string
}

func (m *recordingModel) ID() string {
	return "recording:test"
}

func (m *recordingModel) Generate(ctx context.Context, req provider.GenerateRequest) (*types.GenerateResponse, error) {
	return &types.GenerateResponse{Content: "Inbox triage"}, nil
}

func (m *recordingModel) Stream(ctx context.Context, req provider.GenerateRequest) (<-chan types.StreamEvent, <-chan error) {
	m.mu.Lock()
	names := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		names = append(names, t.Name)
	}
	m.toolNames = append(m.toolNames, names)
	m.mu.Unlock()

	events := make(chan types.StreamEvent, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		events <- types.NewTextDeltaEvent(m.text, 0)
		events <- types.NewFinishReasonEvent(types.FinishReasonStop)
	}()

	return events, errs
}

func (m *recordingModel) offeredTools() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.toolNames
}

type staticToolProvider struct {
	name string
}

func (p *staticToolProvider) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(p.name, "test tool", map[string]any{"type": "object"}, func(ctx context.Context, args string) (string, error) {
			return "{}", nil
		}),
	}, nil
}

func newAssistantFixture(t *testing.T, model provider.LanguageModel) (*AssistantManager, *storage.MemoryConnectorConfigStore, *storage.MemoryMessageStore) {
	t.Helper()

	registry := domain.NewConnectorRegistry([]domain.ConnectorDescriptor{
		{Type: domain.ConnectorTypeGmail, DisplayName: "Gmail"},
		{Type: domain.ConnectorTypeGoogleDrive, DisplayName: "Google Drive"},
	})
	registry.RegisterToolProvider(domain.ConnectorTypeGmail, &staticToolProvider{name: "gmail_list_messages"})
	registry.RegisterToolProvider(domain.ConnectorTypeGoogleDrive, &staticToolProvider{name: "drive_search_files"})

	configStore := storage.NewMemoryConnectorConfigStore()
	messageStore := storage.NewMemoryMessageStore()

	manager := NewAssistantManager(AssistantManagerDependencies{
		Registry:     registry,
		ConfigStore:  configStore,
		MessageStore: messageStore,
		Model:        model,
		MaxSteps:     3,
	})

	return manager, configStore, messageStore
}

func enableConnector(t *testing.T, store *storage.MemoryConnectorConfigStore, connectorType domain.ConnectorType, healthy bool) {
	t.Helper()

	config := domain.ConnectorConfig{
		Type:             connectorType,
		EncryptedPayload: "sealed",
		Enabled:          true,
	}

	if healthy {
		now := time.Now()
		config.LastHealthyAt = &now
	}

	require.NoError(t, store.UpsertConnectorConfig(context.Background(), config))
}

func TestRunTurn_PersistsOneAssistantMessage(t *testing.T) {
	model := &recordingModel{text: "here is your summary"}
	manager, configStore, messageStore := newAssistantFixture(t, model)
	enableConnector(t, configStore, domain.ConnectorTypeGmail, true)

	result, err := manager.RunTurn(context.Background(), RunTurnParams{UserMessage: "summarize my inbox"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, "here is your summary", result.Message.Content)
	assert.Equal(t, types.FinishReasonStop, result.FinishReason)

	messages, err := messageStore.ListMessages(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, string(types.RoleUser), messages[0].Role)
	assert.Equal(t, string(types.RoleAssistant), messages[1].Role)
}

func TestRunTurn_OnlyHealthyConnectorsContributeTools(t *testing.T) {
	model := &recordingModel{text: "done"}
	manager, configStore, _ := newAssistantFixture(t, model)

	enableConnector(t, configStore, domain.ConnectorTypeGmail, true)
	// Drive is enabled but has never passed a health check.
	enableConnector(t, configStore, domain.ConnectorTypeGoogleDrive, false)

	_, err := manager.RunTurn(context.Background(), RunTurnParams{UserMessage: "hello"})
	require.NoError(t, err)

	offered := model.offeredTools()
	require.Len(t, offered, 1)
	assert.Equal(t, []string{"gmail_list_messages"}, offered[0])
}

func TestRunTurn_ContinuesExistingConversation(t *testing.T) {
	model := &recordingModel{text: "second answer"}
	manager, _, messageStore := newAssistantFixture(t, model)

	first, err := manager.RunTurn(context.Background(), RunTurnParams{UserMessage: "first question"})
	require.NoError(t, err)

	second, err := manager.RunTurn(context.Background(), RunTurnParams{
		ConversationID: first.ConversationID,
		UserMessage:    "second question",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	messages, err := messageStore.ListMessages(context.Background(), first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestRunTurn_EmptyMessageRejected(t *testing.T) {
	model := &recordingModel{text: "x"}
	manager, _, _ := newAssistantFixture(t, model)

	_, err := manager.RunTurn(context.Background(), RunTurnParams{UserMessage: "   "})
	require.Error(t, err)
}

func TestRunTurn_GeneratesTitleInBackground(t *testing.T) {
	model := &recordingModel{text: "answer"}
	manager, _, messageStore := newAssistantFixture(t, model)

	result, err := manager.RunTurn(context.Background(), RunTurnParams{UserMessage: "plan my week"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		conversation, err := messageStore.GetConversation(context.Background(), result.ConversationID)
		return err == nil && conversation.Title == "Inbox triage"
	}, 2*time.Second, 10*time.Millisecond)
}
