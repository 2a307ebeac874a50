// Package cache holds provider API responses keyed by connector type and
// logical query key, shielding the assistant and UI from live-API latency and
// rate limits.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/domain"
)

const DefaultTTL = 5 * time.Minute

// ComputeFunc produces a live payload when no cached entry is usable.
type ComputeFunc func(ctx context.Context) (any, error)

// Entry is one cached payload. Entries past ExpiresAt are logically absent
// even while physically retained until swept.
type Entry struct {
	ConnectorType domain.ConnectorType
	Key           string
	Payload       any
	ComputedAt    time.Time
	ExpiresAt     time.Time
	SourceFresh   bool
}

type entryKey struct {
	connectorType domain.ConnectorType
	key           string
}

// inflightCall is the shared handle for one in-progress computation. The done
// channel is closed exactly once; all waiters observe the same outcome.
type inflightCall struct {
	done    chan struct{}
	payload any
	err     error
}

type Dependencies struct {
	Registry   domain.ConnectorRegistry
	Store      domain.ConnectorConfigStore
	DefaultTTL time.Duration
}

// Engine owns the cache entry set. Connector clients never cache internally.
type Engine struct {
	registry   domain.ConnectorRegistry
	store      domain.ConnectorConfigStore
	defaultTTL time.Duration

	mu      sync.RWMutex
	entries map[entryKey]*Entry

	inflightMu sync.Mutex
	inflight   map[entryKey]*inflightCall

	now func() time.Time
}

func NewEngine(deps Dependencies) *Engine {
	defaultTTL := deps.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &Engine{
		registry:   deps.Registry,
		store:      deps.Store,
		defaultTTL: defaultTTL,
		entries:    make(map[entryKey]*Entry),
		inflight:   make(map[entryKey]*inflightCall),
		now:        time.Now,
	}
}

// Get returns a live cached payload, or computes one. At most one computation
// runs per (connectorType, key); concurrent callers wait for and share its
// result instead of issuing duplicate upstream calls.
func (e *Engine) Get(ctx context.Context, connectorType domain.ConnectorType, key string, compute ComputeFunc) (any, bool, error) {
	ek := entryKey{connectorType: connectorType, key: key}

	if payload, ok := e.lookupLive(ek); ok {
		return payload, true, nil
	}

	e.inflightMu.Lock()

	if call, ok := e.inflight[ek]; ok {
		e.inflightMu.Unlock()

		select {
		case <-call.done:
			return call.payload, false, call.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	e.inflight[ek] = call
	e.inflightMu.Unlock()

	payload, err := compute(ctx)

	call.payload = payload
	call.err = err

	if err == nil {
		e.storeEntry(ek, payload)
	}

	e.inflightMu.Lock()
	delete(e.inflight, ek)
	e.inflightMu.Unlock()

	close(call.done)

	if err != nil {
		return nil, false, &domain.UpstreamAPIError{ConnectorType: connectorType, Operation: key, Err: err}
	}

	return payload, false, nil
}

func (e *Engine) lookupLive(ek entryKey) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.entries[ek]
	if !ok {
		return nil, false
	}

	if !e.now().Before(entry.ExpiresAt) {
		return nil, false
	}

	return entry.Payload, true
}

func (e *Engine) storeEntry(ek entryKey, payload any) {
	now := e.now()

	// Last write wins on (connectorType, key); a concurrent cleanup cannot
	// drop the replacement because both paths take the write lock.
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries[ek] = &Entry{
		ConnectorType: ek.connectorType,
		Key:           ek.key,
		Payload:       payload,
		ComputedAt:    now,
		ExpiresAt:     now.Add(e.ttlFor(ek.connectorType)),
		SourceFresh:   true,
	}
}

func (e *Engine) ttlFor(connectorType domain.ConnectorType) time.Duration {
	if e.registry != nil {
		if descriptor, err := e.registry.Descriptor(connectorType); err == nil && descriptor.CacheTTL > 0 {
			return descriptor.CacheTTL
		}
	}

	return e.defaultTTL
}

// PreloadResult is the outcome of warming one (connector, key) pair.
type PreloadResult struct {
	ConnectorType domain.ConnectorType `json:"connector_type"`
	Key           string               `json:"key"`
	Success       bool                 `json:"success"`
	FromCache     bool                 `json:"from_cache"`
	Error         string               `json:"error,omitempty"`
}

// PreloadSummary aggregates a bulk preload run.
type PreloadSummary struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	FromCache  int             `json:"from_cache"`
	Results    []PreloadResult `json:"results"`
}

// PreloadAll warms every enabled connector's preload keys. One connector's
// failure never aborts the others.
func (e *Engine) PreloadAll(ctx context.Context) (PreloadSummary, error) {
	configs, err := e.store.ListConnectorConfigs(ctx)
	if err != nil {
		return PreloadSummary{}, fmt.Errorf("failed to list connector configs: %w", err)
	}

	summary := PreloadSummary{Results: []PreloadResult{}}

	for _, config := range configs {
		if !config.Enabled {
			continue
		}

		descriptor, err := e.registry.Descriptor(config.Type)
		if err != nil {
			continue
		}

		fetcher, err := e.registry.SelectFetcher(ctx, domain.SelectConnectorParams{ConnectorType: config.Type})
		if err != nil {
			log.Warn().Str("connector_type", string(config.Type)).Msg("No fetcher registered, skipping preload")

			continue
		}

		for _, key := range descriptor.PreloadKeys {
			result := PreloadResult{ConnectorType: config.Type, Key: key}

			fetchKey := key

			_, fromCache, err := e.Get(ctx, config.Type, key, func(ctx context.Context) (any, error) {
				return fetcher.Fetch(ctx, fetchKey)
			})
			if err != nil {
				result.Error = err.Error()

				log.Warn().Err(err).Str("connector_type", string(config.Type)).Str("key", key).Msg("Preload failed")
			} else {
				result.Success = true
				result.FromCache = fromCache
			}

			summary.Total++
			summary.Results = append(summary.Results, result)

			if result.Success {
				summary.Successful++
			} else {
				summary.Failed++
			}

			if result.FromCache {
				summary.FromCache++
			}
		}
	}

	return summary, nil
}

// ConnectorStatus is the read-only cache view for one connector.
type ConnectorStatus struct {
	HasCache  bool       `json:"has_cache"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsStale   bool       `json:"is_stale"`
}

// Status reports per-connector cache state without side effects or upstream calls.
func (e *Engine) Status() map[domain.ConnectorType]ConnectorStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	statuses := make(map[domain.ConnectorType]ConnectorStatus)

	for ek, entry := range e.entries {
		status := statuses[ek.connectorType]
		status.HasCache = true

		if status.ExpiresAt == nil || entry.ExpiresAt.After(*status.ExpiresAt) {
			expiresAt := entry.ExpiresAt
			status.ExpiresAt = &expiresAt
		}

		statuses[ek.connectorType] = status
	}

	for connectorType, status := range statuses {
		status.IsStale = status.ExpiresAt == nil || !now.Before(*status.ExpiresAt)
		statuses[connectorType] = status
	}

	return statuses
}

// Stats is the aggregate read-only cache view.
type Stats struct {
	TotalEntries       int                          `json:"total_entries"`
	ExpiredEntries     int                          `json:"expired_entries"`
	BytesApprox        int                          `json:"bytes_approx"`
	PerConnectorCounts map[domain.ConnectorType]int `json:"per_connector_counts"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()

	stats := Stats{PerConnectorCounts: make(map[domain.ConnectorType]int)}

	for ek, entry := range e.entries {
		stats.TotalEntries++
		stats.PerConnectorCounts[ek.connectorType]++

		if !now.Before(entry.ExpiresAt) {
			stats.ExpiredEntries++
		}

		if encoded, err := json.Marshal(entry.Payload); err == nil {
			stats.BytesApprox += len(encoded)
		}
	}

	return stats
}

// CleanupExpired removes all entries past their expiry and returns the count.
// Safe to call concurrently with Get.
func (e *Engine) CleanupExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	removed := 0

	for ek, entry := range e.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(e.entries, ek)
			removed++
		}
	}

	return removed
}
