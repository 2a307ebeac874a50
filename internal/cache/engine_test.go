package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/internal/storage"
)

type staticFetcher struct {
	payload any
	err     error
	calls   atomic.Int32
}

func (f *staticFetcher) Fetch(ctx context.Context, key string) (any, error) {
	f.calls.Add(1)

	if f.err != nil {
		return nil, f.err
	}

	return f.payload, nil
}

func testRegistry(descriptors ...domain.ConnectorDescriptor) domain.ConnectorRegistry {
	return domain.NewConnectorRegistry(descriptors)
}

func newTestEngine(t *testing.T, registry domain.ConnectorRegistry) (*Engine, *storage.MemoryConnectorConfigStore) {
	t.Helper()

	store := storage.NewMemoryConnectorConfigStore()

	return NewEngine(Dependencies{Registry: registry, Store: store}), store
}

func TestEngine_GetCachesUntilExpiry(t *testing.T) {
	registry := testRegistry(domain.ConnectorDescriptor{
		Type:     domain.ConnectorTypeGmail,
		CacheTTL: time.Minute,
	})

	engine, _ := newTestEngine(t, registry)

	calls := 0
	compute := func(ctx context.Context) (any, error) {
		calls++
		return "payload", nil
	}

	payload, fromCache, err := engine.Get(context.Background(), domain.ConnectorTypeGmail, "recent_messages", compute)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "payload", payload)

	payload, fromCache, err = engine.Get(context.Background(), domain.ConnectorTypeGmail, "recent_messages", compute)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "payload", payload)
	assert.Equal(t, 1, calls)
}

func TestEngine_ExpiredEntryRecomputed(t *testing.T) {
	registry := testRegistry(domain.ConnectorDescriptor{
		Type:     domain.ConnectorTypeGmail,
		CacheTTL: time.Minute,
	})

	engine, _ := newTestEngine(t, registry)

	now := time.Now()
	engine.now = func() time.Time { return now }

	calls := 0
	compute := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	_, _, err := engine.Get(context.Background(), domain.ConnectorTypeGmail, "k", compute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	payload, fromCache, err := engine.Get(context.Background(), domain.ConnectorTypeGmail, "k", compute)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 2, payload)
}

func TestEngine_ConcurrentGetComputesOnce(t *testing.T) {
	registry := testRegistry(domain.ConnectorDescriptor{Type: domain.ConnectorTypeGmail})
	engine, _ := newTestEngine(t, registry)

	const callers = 16

	var computeCalls atomic.Int32

	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		computeCalls.Add(1)
		<-release

		return "shared", nil
	}

	var wg sync.WaitGroup

	payloads := make([]any, callers)
	errs := make([]error, callers)

	started := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			started <- struct{}{}
			payloads[i], _, errs[i] = engine.Get(context.Background(), domain.ConnectorTypeGmail, "k", compute)
		}(i)
	}

	for i := 0; i < callers; i++ {
		<-started
	}

	// Give the waiters time to reach the in-flight handle before release.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computeCalls.Load())

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", payloads[i])
	}
}

func TestEngine_ConcurrentGetSharesFailure(t *testing.T) {
	registry := testRegistry(domain.ConnectorDescriptor{Type: domain.ConnectorTypeGmail})
	engine, _ := newTestEngine(t, registry)

	var computeCalls atomic.Int32

	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		computeCalls.Add(1)
		<-release

		return nil, errors.New("upstream down")
	}

	var wg sync.WaitGroup

	errs := make([]error, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, _, errs[i] = engine.Get(context.Background(), domain.ConnectorTypeGmail, "k", compute)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computeCalls.Load())

	for i := 0; i < 4; i++ {
		require.Error(t, errs[i])
	}

	// A failed computation leaves no entry behind.
	assert.Equal(t, 0, engine.Stats().TotalEntries)
}

func TestEngine_PreloadAllIsolatesFailures(t *testing.T) {
	registry := testRegistry(
		domain.ConnectorDescriptor{Type: domain.ConnectorTypeGmail, PreloadKeys: []string{"recent_messages"}},
		domain.ConnectorDescriptor{Type: domain.ConnectorTypeGoogleDrive, PreloadKeys: []string{"recent_files"}},
		domain.ConnectorDescriptor{Type: domain.ConnectorTypeOutlook, PreloadKeys: []string{"recent_messages"}},
	)

	registry.RegisterFetcher(domain.ConnectorTypeGmail, &staticFetcher{payload: "mails"})
	registry.RegisterFetcher(domain.ConnectorTypeGoogleDrive, &staticFetcher{err: errors.New("quota exceeded")})
	registry.RegisterFetcher(domain.ConnectorTypeOutlook, &staticFetcher{payload: "outlook mails"})

	engine, store := newTestEngine(t, registry)

	for _, connectorType := range []domain.ConnectorType{domain.ConnectorTypeGmail, domain.ConnectorTypeGoogleDrive, domain.ConnectorTypeOutlook} {
		require.NoError(t, store.UpsertConnectorConfig(context.Background(), domain.ConnectorConfig{
			Type:    connectorType,
			Enabled: true,
		}))
	}

	summary, err := engine.PreloadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Results, 3)

	byType := map[domain.ConnectorType]PreloadResult{}
	for _, result := range summary.Results {
		byType[result.ConnectorType] = result
	}

	assert.True(t, byType[domain.ConnectorTypeGmail].Success)
	assert.True(t, byType[domain.ConnectorTypeOutlook].Success)
	assert.False(t, byType[domain.ConnectorTypeGoogleDrive].Success)
	assert.Contains(t, byType[domain.ConnectorTypeGoogleDrive].Error, "quota exceeded")
}

func TestEngine_PreloadAllSkipsDisabledConnectors(t *testing.T) {
	fetcher := &staticFetcher{payload: "mails"}

	registry := testRegistry(domain.ConnectorDescriptor{
		Type:        domain.ConnectorTypeGmail,
		PreloadKeys: []string{"recent_messages"},
	})
	registry.RegisterFetcher(domain.ConnectorTypeGmail, fetcher)

	engine, store := newTestEngine(t, registry)

	require.NoError(t, store.UpsertConnectorConfig(context.Background(), domain.ConnectorConfig{
		Type:    domain.ConnectorTypeGmail,
		Enabled: false,
	}))

	summary, err := engine.PreloadAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestEngine_CleanupExpired(t *testing.T) {
	registry := testRegistry(
		domain.ConnectorDescriptor{Type: domain.ConnectorTypeGmail, CacheTTL: time.Minute},
		domain.ConnectorDescriptor{Type: domain.ConnectorTypeGoogleDrive, CacheTTL: time.Hour},
	)

	engine, _ := newTestEngine(t, registry)

	now := time.Now()
	engine.now = func() time.Time { return now }

	_, _, err := engine.Get(context.Background(), domain.ConnectorTypeGmail, "a", func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)

	_, _, err = engine.Get(context.Background(), domain.ConnectorTypeGoogleDrive, "b", func(ctx context.Context) (any, error) { return 2, nil })
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)

	assert.Equal(t, 2, engine.Stats().TotalEntries)
	assert.Equal(t, 1, engine.Stats().ExpiredEntries)

	removed := engine.CleanupExpired()
	assert.Equal(t, 1, removed)

	stats := engine.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 0, stats.ExpiredEntries)
	assert.Equal(t, 1, stats.PerConnectorCounts[domain.ConnectorTypeGoogleDrive])
	assert.Zero(t, stats.PerConnectorCounts[domain.ConnectorTypeGmail])
}

func TestEngine_Status(t *testing.T) {
	registry := testRegistry(domain.ConnectorDescriptor{Type: domain.ConnectorTypeGmail, CacheTTL: time.Minute})
	engine, _ := newTestEngine(t, registry)

	now := time.Now()
	engine.now = func() time.Time { return now }

	statuses := engine.Status()
	assert.Empty(t, statuses)

	_, _, err := engine.Get(context.Background(), domain.ConnectorTypeGmail, "a", func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)

	statuses = engine.Status()
	require.Contains(t, statuses, domain.ConnectorTypeGmail)
	assert.True(t, statuses[domain.ConnectorTypeGmail].HasCache)
	assert.False(t, statuses[domain.ConnectorTypeGmail].IsStale)

	now = now.Add(2 * time.Minute)

	statuses = engine.Status()
	assert.True(t, statuses[domain.ConnectorTypeGmail].HasCache)
	assert.True(t, statuses[domain.ConnectorTypeGmail].IsStale)
}
