package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectorNotConfigured is returned when a connector has no stored config.
	ErrConnectorNotConfigured = errors.New("connector not configured")

	// ErrConnectorDisabled is returned when an operation requires an enabled connector.
	ErrConnectorDisabled = errors.New("connector is disabled")

	// ErrUnknownConnectorType is returned for connector types absent from the registry.
	ErrUnknownConnectorType = errors.New("unknown connector type")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ConfigurationError indicates missing or malformed startup configuration.
// It is fatal at startup or first use and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// IntegrityError indicates that an encrypted envelope is malformed or failed
// authentication. The record is unrecoverable; the error is surfaced, not retried.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s", e.Reason)
}

func NewIntegrityError(reason string) *IntegrityError {
	return &IntegrityError{Reason: reason}
}

// AuthorizationError indicates the provider denied or cancelled consent.
type AuthorizationError struct {
	ConnectorType ConnectorType
	Code          string
	Description   string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed for %s: %s (%s)", e.ConnectorType, e.Code, e.Description)
	}

	return fmt.Sprintf("authorization failed for %s: %s", e.ConnectorType, e.Code)
}

// TokenExchangeError indicates a failed code exchange or token refresh.
// Authorization codes are single-use, so the flow is never retried mid-way.
type TokenExchangeError struct {
	ConnectorType ConnectorType
	Err           error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed for %s: %v", e.ConnectorType, e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// UpstreamAPIError indicates a live provider call failed during a cache compute
// or a tool invocation. Failures are isolated per connector and never abort
// sibling operations.
type UpstreamAPIError struct {
	ConnectorType ConnectorType
	Operation     string
	Err           error
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("upstream api error for %s (%s): %v", e.ConnectorType, e.Operation, e.Err)
}

func (e *UpstreamAPIError) Unwrap() error {
	return e.Err
}
