package managers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/agent"
	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/tool"
	"github.com/deskmate/deskmate/pkg/ai/types"
)

const defaultSystemPrompt = `You are a personal assistant with access to the user's connected accounts through tools. Use tools to answer questions about mail, files, documents, spreadsheets and calendars. Be concise and factual; never invent data a tool did not return.`

const titleTimeout = 15 * time.Second

type AssistantManagerDependencies struct {
	Registry     domain.ConnectorRegistry
	ConfigStore  domain.ConnectorConfigStore
	MessageStore domain.MessageStore
	Model        provider.LanguageModel
	SystemPrompt string
	MaxSteps     int
}

// AssistantManager runs conversational turns: it assembles the tool set from
// the enabled and healthy connectors, drives the dispatch loop and persists
// exactly one final assistant message per turn.
type AssistantManager struct {
	registry     domain.ConnectorRegistry
	configStore  domain.ConnectorConfigStore
	messageStore domain.MessageStore
	model        provider.LanguageModel
	systemPrompt string
	maxSteps     int

	now   func() time.Time
	newID func() string
}

func NewAssistantManager(deps AssistantManagerDependencies) *AssistantManager {
	systemPrompt := deps.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &AssistantManager{
		registry:     deps.Registry,
		configStore:  deps.ConfigStore,
		messageStore: deps.MessageStore,
		model:        deps.Model,
		systemPrompt: systemPrompt,
		maxSteps:     deps.MaxSteps,
		now:          time.Now,
		newID:        func() string { return xid.New().String() },
	}
}

type RunTurnParams struct {
	ConversationID string
	UserMessage    string
}

type TurnResult struct {
	ConversationID string
	Message        domain.ChatMessage
	FinishReason   string
	StepCount      int
}

// RunTurn executes one conversational turn. A missing conversation id starts
// a new conversation, whose title is generated in the background.
func (m *AssistantManager) RunTurn(ctx context.Context, params RunTurnParams) (TurnResult, error) {
	if strings.TrimSpace(params.UserMessage) == "" {
		return TurnResult{}, fmt.Errorf("user message is empty")
	}

	conversationID := params.ConversationID
	isNewConversation := conversationID == ""

	if isNewConversation {
		conversationID = m.newID()

		err := m.messageStore.CreateConversation(ctx, domain.Conversation{
			ID:        conversationID,
			CreatedAt: m.now(),
			UpdatedAt: m.now(),
		})
		if err != nil {
			return TurnResult{}, fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	history, err := m.messageStore.ListMessages(ctx, conversationID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("failed to load conversation history: %w", err)
	}

	userMessage := domain.ChatMessage{
		ID:             m.newID(),
		ConversationID: conversationID,
		Role:           string(types.RoleUser),
		Content:        params.UserMessage,
		CreatedAt:      m.now(),
		UpdatedAt:      m.now(),
	}

	if err := m.messageStore.AppendMessage(ctx, userMessage); err != nil {
		return TurnResult{}, fmt.Errorf("failed to persist user message: %w", err)
	}

	tools, err := m.connectorTools(ctx)
	if err != nil {
		return TurnResult{}, err
	}

	turnAgent, err := agent.New(
		agent.WithModel(m.model),
		agent.WithSystemPrompt(m.systemPrompt),
		agent.WithMaxSteps(m.maxSteps),
		agent.WithTools(tools...),
	)
	if err != nil {
		return TurnResult{}, err
	}

	messages := make([]types.Message, 0, len(history)+1)
	for _, stored := range history {
		messages = append(messages, types.Message{
			Role:    types.MessageRole(stored.Role),
			Content: stored.Content,
		})
	}
	messages = append(messages, types.Message{Role: types.RoleUser, Content: params.UserMessage})

	result, err := turnAgent.Run(ctx, messages)
	if err != nil {
		return TurnResult{}, err
	}

	assistantMessage := domain.ChatMessage{
		ID:             m.newID(),
		ConversationID: conversationID,
		Role:           string(types.RoleAssistant),
		Content:        result.Content,
		CreatedAt:      m.now(),
		UpdatedAt:      m.now(),
	}

	if err := m.messageStore.AppendMessage(ctx, assistantMessage); err != nil {
		return TurnResult{}, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	if isNewConversation {
		go m.generateTitle(conversationID, params.UserMessage)
	}

	return TurnResult{
		ConversationID: conversationID,
		Message:        assistantMessage,
		FinishReason:   result.FinishReason,
		StepCount:      len(result.Steps),
	}, nil
}

// connectorTools is the union of tool definitions over every enabled and
// healthy connector. Connectors without a registered tool provider are
// skipped, not fatal.
func (m *AssistantManager) connectorTools(ctx context.Context) ([]tool.Tool, error) {
	configs, err := m.configStore.ListConnectorConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connector configs: %w", err)
	}

	tools := make([]tool.Tool, 0)

	for _, config := range configs {
		if !config.Enabled || config.LastHealthyAt == nil {
			continue
		}

		toolProvider, err := m.registry.SelectToolProvider(ctx, domain.SelectConnectorParams{ConnectorType: config.Type})
		if err != nil {
			log.Warn().Err(err).Str("connector_type", string(config.Type)).Msg("No tool provider for connector")
			continue
		}

		connectorTools, err := toolProvider.Tools(ctx)
		if err != nil {
			log.Warn().Err(err).Str("connector_type", string(config.Type)).Msg("Failed to collect connector tools")
			continue
		}

		tools = append(tools, connectorTools...)
	}

	return tools, nil
}

// generateTitle runs detached from the request. Failures only log; the
// conversation simply keeps an empty title.
func (m *AssistantManager) generateTitle(conversationID, userMessage string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	response, err := m.model.Generate(ctx, provider.GenerateRequest{
		System: "Write a title of at most six words for a conversation that starts with the given message. Reply with the title only.",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: userMessage},
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Title generation failed")
		return
	}

	title := strings.Trim(strings.TrimSpace(response.Content), `"`)
	if title == "" {
		return
	}

	if err := m.messageStore.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to store conversation title")
	}
}
