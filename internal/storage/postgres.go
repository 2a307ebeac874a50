package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskmate/deskmate/internal/domain"
)

// PostgresStore implements the connector-config and message stores on a pgx
// connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}

	if err := store.migrate(ctx); err != nil {
		pool.Close()

		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS connector_configs (
			type TEXT PRIMARY KEY,
			encrypted_payload TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			last_healthy_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, statement := range statements {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) GetConnectorConfig(ctx context.Context, connectorType domain.ConnectorType) (domain.ConnectorConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT type, encrypted_payload, enabled, last_healthy_at, updated_at FROM connector_configs WHERE type = $1`,
		string(connectorType))

	var config domain.ConnectorConfig

	err := row.Scan(&config.Type, &config.EncryptedPayload, &config.Enabled, &config.LastHealthyAt, &config.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConnectorConfig{}, domain.ErrConnectorNotConfigured
	}

	if err != nil {
		return domain.ConnectorConfig{}, fmt.Errorf("failed to get connector config: %w", err)
	}

	return config, nil
}

func (s *PostgresStore) UpsertConnectorConfig(ctx context.Context, config domain.ConnectorConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO connector_configs (type, encrypted_payload, enabled, last_healthy_at, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (type) DO UPDATE SET
			encrypted_payload = EXCLUDED.encrypted_payload,
			enabled = EXCLUDED.enabled,
			last_healthy_at = EXCLUDED.last_healthy_at,
			updated_at = now()`,
		string(config.Type), config.EncryptedPayload, config.Enabled, config.LastHealthyAt)
	if err != nil {
		return fmt.Errorf("failed to upsert connector config: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListConnectorConfigs(ctx context.Context) ([]domain.ConnectorConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT type, encrypted_payload, enabled, last_healthy_at, updated_at FROM connector_configs ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connector configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.ConnectorConfig

	for rows.Next() {
		var config domain.ConnectorConfig

		if err := rows.Scan(&config.Type, &config.EncryptedPayload, &config.Enabled, &config.LastHealthyAt, &config.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connector config: %w", err)
		}

		configs = append(configs, config)
	}

	return configs, rows.Err()
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conversation domain.Conversation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES ($1, $2, now(), now())`,
		conversation.ID, conversation.Title)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, conversationID)

	var conversation domain.Conversation

	err := row.Scan(&conversation.ID, &conversation.Title, &conversation.CreatedAt, &conversation.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}

	if err != nil {
		return domain.Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conversation, nil
}

func (s *PostgresStore) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`, conversationID, title)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}

	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, message domain.ChatMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())`,
		message.ID, message.ConversationID, message.Role, message.Content)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

func (s *PostgresStore) UpdateMessageContent(ctx context.Context, messageID, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET content = $2, updated_at = now() WHERE id = $1`, messageID, content)
	if err != nil {
		return fmt.Errorf("failed to update message content: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}

	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at, updated_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage

	for rows.Next() {
		var message domain.ChatMessage

		if err := rows.Scan(&message.ID, &message.ConversationID, &message.Role, &message.Content, &message.CreatedAt, &message.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		messages = append(messages, message)
	}

	return messages, rows.Err()
}
