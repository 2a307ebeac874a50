package domain

import (
	"context"
	"time"
)

// ChatMessage is one persisted message of a conversation. Only the final
// assembled assistant message of a turn is stored; intermediate tool rounds
// are not.
type ChatMessage struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Conversation groups messages under a stable id with an optional title.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageStore persists conversations and their messages. A message row, once
// created, is updated at most once with final content.
type MessageStore interface {
	CreateConversation(ctx context.Context, conversation Conversation) error
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
	AppendMessage(ctx context.Context, message ChatMessage) error
	UpdateMessageContent(ctx context.Context, messageID, content string) error
	ListMessages(ctx context.Context, conversationID string) ([]ChatMessage, error)
}
