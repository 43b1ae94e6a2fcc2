package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/logger"
	"github.com/saiset-co/sai-offline-cache/store"
	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	snapshot *types.Snapshot
	err      error
	block    chan struct{}
	trace    *callTrace
}

func (f *fakeFetcher) Start() error    { return nil }
func (f *fakeFetcher) Stop() error     { return nil }
func (f *fakeFetcher) IsRunning() bool { return true }

func (f *fakeFetcher) Fetch(ctx context.Context, request *types.Request) (*types.Snapshot, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	f.trace.record("fetch")

	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot.Clone(), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type callTrace struct {
	mu    sync.Mutex
	calls []string
}

func (ct *callTrace) record(call string) {
	if ct == nil {
		return
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.calls = append(ct.calls, call)
}

func (ct *callTrace) snapshot() []string {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return append([]string(nil), ct.calls...)
}

type tracedStore struct {
	types.Store
	trace *callTrace
}

func (ts *tracedStore) Match(ctx context.Context, key string) (*types.Snapshot, bool, error) {
	ts.trace.record("match")
	return ts.Store.Match(ctx, key)
}

func (ts *tracedStore) Put(ctx context.Context, key string, snapshot *types.Snapshot) error {
	ts.trace.record("put")
	return ts.Store.Put(ctx, key, snapshot)
}

func newTestStore(t *testing.T, name string) types.Store {
	t.Helper()

	provider, err := store.NewMemoryProvider(logger.NewZapWrapper(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, provider.Start())
	t.Cleanup(func() { provider.Stop() })

	s, err := provider.Open(context.Background(), name)
	require.NoError(t, err)
	return s
}

func newEngine(fetcher types.Fetcher) *Engine {
	return NewEngine(logger.NewZapWrapper(zap.NewNop()), nil, fetcher)
}

func liveSnapshot(body string) *types.Snapshot {
	return &types.Snapshot{
		Status:     200,
		Headers:    map[string]string{"Content-Type": "text/html"},
		Body:       []byte(body),
		CapturedAt: time.Now(),
	}
}

func request(url string) *types.Request {
	return &types.Request{Method: "GET", URL: url}
}

func TestCacheFirstHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	staticStore := newTestStore(t, "static-v1")

	req := request("https://example.com/app.js")
	cached := liveSnapshot("cached body")
	require.NoError(t, staticStore.Put(ctx, utils.RequestKey(req), cached))

	fetcher := &fakeFetcher{snapshot: liveSnapshot("live body")}
	engine := newEngine(fetcher)

	response := engine.CacheFirst(ctx, req, staticStore)

	assert.Equal(t, 0, fetcher.callCount())
	assert.Equal(t, types.SourceCache, response.Source)
	assert.Equal(t, []byte("cached body"), response.Body)
}

func TestCacheFirstMissFetchesAndCaches(t *testing.T) {
	ctx := context.Background()
	staticStore := newTestStore(t, "static-v1")

	req := request("https://example.com/app.js")
	fetcher := &fakeFetcher{snapshot: liveSnapshot("live body")}
	engine := newEngine(fetcher)

	response := engine.CacheFirst(ctx, req, staticStore)

	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, types.SourceNetwork, response.Source)
	assert.Equal(t, []byte("live body"), response.Body)

	stored, found, err := staticStore.Match(ctx, utils.RequestKey(req))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("live body"), stored.Body)
}

func TestCacheFirstMissOfflineSynthesizes503(t *testing.T) {
	ctx := context.Background()
	staticStore := newTestStore(t, "static-v1")

	fetcher := &fakeFetcher{err: types.ErrFetchFailed}
	engine := newEngine(fetcher)

	response := engine.CacheFirst(ctx, request("https://example.com/app.js"), staticStore)

	assert.Equal(t, types.SourceSynthesized, response.Source)
	assert.Equal(t, 503, response.Status)
	assert.Equal(t, []byte("Offline"), response.Body)
}

func TestCacheFirstDoesNotCacheNon2xx(t *testing.T) {
	ctx := context.Background()
	staticStore := newTestStore(t, "static-v1")

	notFound := liveSnapshot("missing")
	notFound.Status = 404

	fetcher := &fakeFetcher{snapshot: notFound}
	engine := newEngine(fetcher)

	req := request("https://example.com/gone.js")
	response := engine.CacheFirst(ctx, req, staticStore)

	assert.Equal(t, 404, response.Status)

	_, found, err := staticStore.Match(ctx, utils.RequestKey(req))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNetworkFirstSuccessStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	dynamicStore := newTestStore(t, "dynamic-v1")

	live := &types.Snapshot{
		Status:     200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"design":"fresh"}`),
		CapturedAt: time.Now(),
	}

	fetcher := &fakeFetcher{snapshot: live}
	engine := newEngine(fetcher)

	req := request("https://example.com/api/generate?seed=1")
	response := engine.NetworkFirst(ctx, req, dynamicStore)

	assert.Equal(t, types.SourceNetwork, response.Source)
	assert.Equal(t, live.Status, response.Status)
	assert.Equal(t, live.Body, response.Body)

	stored, found, err := dynamicStore.Match(ctx, utils.RequestKey(req))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, live.Status, stored.Status)
	assert.Equal(t, live.Headers, stored.Headers)
	assert.Equal(t, live.Body, stored.Body)
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	dynamicStore := newTestStore(t, "dynamic-v1")

	req := request("https://example.com/api/designs")
	stale := liveSnapshot("stale design")
	require.NoError(t, dynamicStore.Put(ctx, utils.RequestKey(req), stale))

	fetcher := &fakeFetcher{err: types.ErrFetchFailed}
	engine := newEngine(fetcher)

	response := engine.NetworkFirst(ctx, req, dynamicStore)

	assert.Equal(t, types.SourceCache, response.Source)
	assert.Equal(t, []byte("stale design"), response.Body)
}

func TestNetworkFirstOfflineSynthesizesJSON503(t *testing.T) {
	ctx := context.Background()
	dynamicStore := newTestStore(t, "dynamic-v1")

	fetcher := &fakeFetcher{err: types.ErrFetchFailed}
	engine := newEngine(fetcher)

	response := engine.NetworkFirst(ctx, request("https://example.com/api/designs"), dynamicStore)

	assert.Equal(t, types.SourceSynthesized, response.Source)
	assert.Equal(t, 503, response.Status)
	assert.Contains(t, response.Headers["Content-Type"], "application/json")
	assert.Contains(t, string(response.Body), "offline")
}

func TestNetworkFirstNeverReadsStoreBeforeFetchResolves(t *testing.T) {
	ctx := context.Background()
	trace := &callTrace{}

	dynamicStore := &tracedStore{Store: newTestStore(t, "dynamic-v1"), trace: trace}
	fetcher := &fakeFetcher{err: types.ErrFetchFailed, trace: trace}
	engine := newEngine(fetcher)

	engine.NetworkFirst(ctx, request("https://example.com/api/designs"), dynamicStore)

	assert.Equal(t, []string{"fetch", "match"}, trace.snapshot())
}

func TestStaleWhileRevalidateReturnsStaleImmediately(t *testing.T) {
	ctx := context.Background()
	dynamicStore := newTestStore(t, "dynamic-v1")

	req := request("https://example.com/designs/42")
	key := utils.RequestKey(req)
	require.NoError(t, dynamicStore.Put(ctx, key, liveSnapshot("stale page")))

	block := make(chan struct{})
	fetcher := &fakeFetcher{snapshot: liveSnapshot("fresh page"), block: block}
	engine := newEngine(fetcher)

	// The fetch is still blocked when the strategy returns.
	response := engine.StaleWhileRevalidate(ctx, req, dynamicStore)

	assert.Equal(t, types.SourceCache, response.Source)
	assert.Equal(t, []byte("stale page"), response.Body)
	assert.Equal(t, 0, fetcher.callCount())

	// Release the revalidation; its write must land eventually.
	close(block)

	require.Eventually(t, func() bool {
		stored, found, err := dynamicStore.Match(ctx, key)
		return err == nil && found && string(stored.Body) == "fresh page"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleWhileRevalidateMissWaitsForNetwork(t *testing.T) {
	ctx := context.Background()
	dynamicStore := newTestStore(t, "dynamic-v1")

	req := request("https://example.com/designs/42")
	fetcher := &fakeFetcher{snapshot: liveSnapshot("fresh page")}
	engine := newEngine(fetcher)

	response := engine.StaleWhileRevalidate(ctx, req, dynamicStore)

	assert.Equal(t, types.SourceNetwork, response.Source)
	assert.Equal(t, []byte("fresh page"), response.Body)

	stored, found, err := dynamicStore.Match(ctx, utils.RequestKey(req))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("fresh page"), stored.Body)
}

func TestStaleWhileRevalidateMissAndOfflineSynthesizes503(t *testing.T) {
	ctx := context.Background()
	dynamicStore := newTestStore(t, "dynamic-v1")

	fetcher := &fakeFetcher{err: types.ErrFetchFailed}
	engine := newEngine(fetcher)

	response := engine.StaleWhileRevalidate(ctx, request("https://example.com/designs/42"), dynamicStore)

	assert.Equal(t, types.SourceSynthesized, response.Source)
	assert.Equal(t, 503, response.Status)
}

func TestStaleWhileRevalidateWriteSurvivesCallerCancellation(t *testing.T) {
	dynamicStore := newTestStore(t, "dynamic-v1")

	req := request("https://example.com/designs/42")
	key := utils.RequestKey(req)
	require.NoError(t, dynamicStore.Put(context.Background(), key, liveSnapshot("stale page")))

	block := make(chan struct{})
	fetcher := &fakeFetcher{snapshot: liveSnapshot("fresh page"), block: block}
	engine := newEngine(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	response := engine.StaleWhileRevalidate(ctx, req, dynamicStore)
	assert.Equal(t, []byte("stale page"), response.Body)

	// The caller is gone; the background write still goes through.
	cancel()
	close(block)

	require.Eventually(t, func() bool {
		stored, found, err := dynamicStore.Match(context.Background(), key)
		return err == nil && found && string(stored.Body) == "fresh page"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPassthroughForwardsWithoutStores(t *testing.T) {
	ctx := context.Background()

	fetcher := &fakeFetcher{snapshot: liveSnapshot("created")}
	engine := newEngine(fetcher)

	response := engine.Passthrough(ctx, &types.Request{Method: "POST", URL: "https://example.com/api/generate"})

	assert.Equal(t, types.SourcePassthrough, response.Source)
	assert.Equal(t, []byte("created"), response.Body)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestPassthroughOfflineSynthesizes503(t *testing.T) {
	ctx := context.Background()

	fetcher := &fakeFetcher{err: types.ErrFetchFailed}
	engine := newEngine(fetcher)

	response := engine.Passthrough(ctx, &types.Request{Method: "POST", URL: "https://example.com/api/generate"})

	assert.Equal(t, types.SourceSynthesized, response.Source)
	assert.Equal(t, 503, response.Status)
}
