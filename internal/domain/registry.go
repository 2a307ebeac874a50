package domain

import (
	"context"
	"fmt"

	"github.com/deskmate/deskmate/pkg/ai/tool"
)

// ConnectorToolProvider exposes the tool definitions a connector contributes
// to the assistant's dispatch loop.
type ConnectorToolProvider interface {
	Tools(ctx context.Context) ([]tool.Tool, error)
}

type SelectConnectorParams struct {
	ConnectorType ConnectorType
}

// ConnectorRegistry is the capability lookup for all known connector types.
// It is populated once at startup and read-only afterwards; it is passed by
// reference into the OAuth manager, the cache engine and the dispatch loop.
type ConnectorRegistry interface {
	Descriptor(connectorType ConnectorType) (ConnectorDescriptor, error)
	Descriptors() []ConnectorDescriptor

	SelectToolProvider(ctx context.Context, params SelectConnectorParams) (ConnectorToolProvider, error)
	RegisterToolProvider(connectorType ConnectorType, provider ConnectorToolProvider)
	SelectFetcher(ctx context.Context, params SelectConnectorParams) (ConnectorFetcher, error)
	RegisterFetcher(connectorType ConnectorType, fetcher ConnectorFetcher)
	SelectConnectionTester(ctx context.Context, params SelectConnectorParams) (ConnectorConnectionTester, error)
	RegisterConnectionTester(connectorType ConnectorType, tester ConnectorConnectionTester)
}

type connectorRegistry struct {
	descriptorsByType       map[ConnectorType]ConnectorDescriptor
	descriptorOrder         []ConnectorType
	toolProvidersByType     map[ConnectorType]ConnectorToolProvider
	fetchersByType          map[ConnectorType]ConnectorFetcher
	connectionTestersByType map[ConnectorType]ConnectorConnectionTester
}

func NewConnectorRegistry(descriptors []ConnectorDescriptor) ConnectorRegistry {
	registry := &connectorRegistry{
		descriptorsByType:       make(map[ConnectorType]ConnectorDescriptor),
		toolProvidersByType:     make(map[ConnectorType]ConnectorToolProvider),
		fetchersByType:          make(map[ConnectorType]ConnectorFetcher),
		connectionTestersByType: make(map[ConnectorType]ConnectorConnectionTester),
	}

	for _, descriptor := range descriptors {
		registry.descriptorsByType[descriptor.Type] = descriptor
		registry.descriptorOrder = append(registry.descriptorOrder, descriptor.Type)
	}

	return registry
}

func (r *connectorRegistry) Descriptor(connectorType ConnectorType) (ConnectorDescriptor, error) {
	descriptor, ok := r.descriptorsByType[connectorType]
	if !ok {
		return ConnectorDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownConnectorType, connectorType)
	}

	return descriptor, nil
}

func (r *connectorRegistry) Descriptors() []ConnectorDescriptor {
	descriptors := make([]ConnectorDescriptor, 0, len(r.descriptorOrder))

	for _, connectorType := range r.descriptorOrder {
		descriptors = append(descriptors, r.descriptorsByType[connectorType])
	}

	return descriptors
}

func (r *connectorRegistry) SelectToolProvider(ctx context.Context, params SelectConnectorParams) (ConnectorToolProvider, error) {
	provider, ok := r.toolProvidersByType[params.ConnectorType]
	if !ok {
		return nil, fmt.Errorf("tool provider not found for connector type %s", params.ConnectorType)
	}

	return provider, nil
}

func (r *connectorRegistry) RegisterToolProvider(connectorType ConnectorType, provider ConnectorToolProvider) {
	r.toolProvidersByType[connectorType] = provider
}

func (r *connectorRegistry) SelectFetcher(ctx context.Context, params SelectConnectorParams) (ConnectorFetcher, error) {
	fetcher, ok := r.fetchersByType[params.ConnectorType]
	if !ok {
		return nil, fmt.Errorf("fetcher not found for connector type %s", params.ConnectorType)
	}

	return fetcher, nil
}

func (r *connectorRegistry) RegisterFetcher(connectorType ConnectorType, fetcher ConnectorFetcher) {
	r.fetchersByType[connectorType] = fetcher
}

func (r *connectorRegistry) SelectConnectionTester(ctx context.Context, params SelectConnectorParams) (ConnectorConnectionTester, error) {
	tester, ok := r.connectionTestersByType[params.ConnectorType]
	if !ok {
		return nil, fmt.Errorf("connection tester not found for connector type %s", params.ConnectorType)
	}

	return tester, nil
}

func (r *connectorRegistry) RegisterConnectionTester(connectorType ConnectorType, tester ConnectorConnectionTester) {
	r.connectionTestersByType[connectorType] = tester
}
