// Package storage provides the persistence backends for connector configs,
// authorization states and chat messages. The in-memory implementations back
// development mode and tests; the Postgres implementations back deployments.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/deskmate/deskmate/internal/domain"
)

type MemoryConnectorConfigStore struct {
	mu      sync.RWMutex
	configs map[domain.ConnectorType]domain.ConnectorConfig
}

func NewMemoryConnectorConfigStore() *MemoryConnectorConfigStore {
	return &MemoryConnectorConfigStore{
		configs: make(map[domain.ConnectorType]domain.ConnectorConfig),
	}
}

func (s *MemoryConnectorConfigStore) GetConnectorConfig(ctx context.Context, connectorType domain.ConnectorType) (domain.ConnectorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, ok := s.configs[connectorType]
	if !ok {
		return domain.ConnectorConfig{}, domain.ErrConnectorNotConfigured
	}

	return config, nil
}

func (s *MemoryConnectorConfigStore) UpsertConnectorConfig(ctx context.Context, config domain.ConnectorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config.UpdatedAt = time.Now()
	s.configs[config.Type] = config

	return nil
}

func (s *MemoryConnectorConfigStore) ListConnectorConfigs(ctx context.Context) ([]domain.ConnectorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]domain.ConnectorConfig, 0, len(s.configs))
	for _, config := range s.configs {
		configs = append(configs, config)
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Type < configs[j].Type
	})

	return configs, nil
}

const authorizationStateTTL = 10 * time.Minute

// MemoryAuthorizationStateStore holds pending authorization states. States
// expire after ten minutes to bound memory when a redirect is never completed.
type MemoryAuthorizationStateStore struct {
	mu     sync.Mutex
	states map[string]domain.AuthorizationState
}

func NewMemoryAuthorizationStateStore() *MemoryAuthorizationStateStore {
	return &MemoryAuthorizationStateStore{
		states: make(map[string]domain.AuthorizationState),
	}
}

func (s *MemoryAuthorizationStateStore) Put(state domain.AuthorizationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for nonce, pending := range s.states {
		if time.Since(pending.CreatedAt) > authorizationStateTTL {
			delete(s.states, nonce)
		}
	}

	s.states[state.Nonce] = state

	return nil
}

func (s *MemoryAuthorizationStateStore) Consume(nonce string) (domain.AuthorizationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[nonce]
	if !ok {
		return domain.AuthorizationState{}, false
	}

	delete(s.states, nonce)

	if time.Since(state.CreatedAt) > authorizationStateTTL {
		return domain.AuthorizationState{}, false
	}

	return state, true
}

type MemoryMessageStore struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
	messages      map[string][]domain.ChatMessage
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.ChatMessage),
	}
}

func (s *MemoryMessageStore) CreateConversation(ctx context.Context, conversation domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conversation.ID] = conversation

	return nil
}

func (s *MemoryMessageStore) GetConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, ok := s.conversations[conversationID]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}

	return conversation, nil
}

func (s *MemoryMessageStore) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[conversationID]
	if !ok {
		return domain.ErrConversationNotFound
	}

	conversation.Title = title
	conversation.UpdatedAt = time.Now()
	s.conversations[conversationID] = conversation

	return nil
}

func (s *MemoryMessageStore) AppendMessage(ctx context.Context, message domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)

	return nil
}

func (s *MemoryMessageStore) UpdateMessageContent(ctx context.Context, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conversationID, messages := range s.messages {
		for i, message := range messages {
			if message.ID == messageID {
				message.Content = content
				message.UpdatedAt = time.Now()
				s.messages[conversationID][i] = message

				return nil
			}
		}
	}

	return domain.ErrMessageNotFound
}

func (s *MemoryMessageStore) ListMessages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]domain.ChatMessage, len(s.messages[conversationID]))
	copy(messages, s.messages[conversationID])

	return messages, nil
}
