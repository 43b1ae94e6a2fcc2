package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

// Engine implements the three caching strategies over the uniform
// store contract. Strategies own store contents, never store names;
// every network and store failure is contained here and converted to a
// fallback value or a synthesized response.
type Engine struct {
	logger  types.Logger
	metrics types.MetricsManager
	fetcher types.Fetcher
}

func NewEngine(logger types.Logger, metrics types.MetricsManager, fetcher types.Fetcher) *Engine {
	return &Engine{
		logger:  logger,
		metrics: metrics,
		fetcher: fetcher,
	}
}

// CacheFirst serves static assets: a hit returns the snapshot with no
// network call at all; a miss performs the single live fetch and
// caches a 2xx result on the way out. Fetch failure synthesizes a 503.
func (e *Engine) CacheFirst(ctx context.Context, request *types.Request, store types.Store) *types.Response {
	key := utils.RequestKey(request)

	snapshot, found, err := store.Match(ctx, key)
	if err != nil {
		e.logger.Debug("Cache-first lookup failed, treating as miss",
			zap.String("key", key), zap.Error(err))
	}

	if found {
		e.recordOutcome("cache_first", "hit")
		return fromCache(snapshot)
	}

	fresh, err := e.fetcher.Fetch(ctx, request)
	if err != nil {
		e.recordOutcome("cache_first", "offline")
		e.logger.Warn("Cache-first fetch failed with empty cache",
			zap.String("url", request.URL), zap.Error(err))
		return synthesizeOffline()
	}

	if fresh.IsSuccess() {
		e.putBestEffort(ctx, store, key, fresh)
	}

	e.recordOutcome("cache_first", "miss")
	return fromNetwork(fresh)
}

// NetworkFirst serves API requests: the store is never consulted until
// the live attempt has resolved. A 2xx result is written through; a
// failed fetch falls back to the store, and an empty store synthesizes
// a 503 JSON response.
func (e *Engine) NetworkFirst(ctx context.Context, request *types.Request, store types.Store) *types.Response {
	key := utils.RequestKey(request)

	fresh, err := e.fetcher.Fetch(ctx, request)
	if err == nil {
		if fresh.IsSuccess() {
			e.putBestEffort(ctx, store, key, fresh)
		}
		e.recordOutcome("network_first", "network")
		return fromNetwork(fresh)
	}

	snapshot, found, matchErr := store.Match(ctx, key)
	if matchErr != nil {
		e.logger.Debug("Network-first fallback lookup failed, treating as miss",
			zap.String("key", key), zap.Error(matchErr))
	}

	if found {
		e.recordOutcome("network_first", "fallback")
		e.logger.Debug("Serving stale snapshot after fetch failure",
			zap.String("key", key), zap.Error(err))
		return fromCache(snapshot)
	}

	e.recordOutcome("network_first", "offline")
	e.logger.Warn("Network-first fetch failed with empty cache",
		zap.String("url", request.URL), zap.Error(err))
	return synthesizeOfflineJSON()
}

// StaleWhileRevalidate serves everything else: the store lookup and
// the live fetch run concurrently. A stale snapshot is returned
// immediately while revalidation finishes in the background; with no
// stale snapshot the caller waits for the fetch, and a failed fetch
// synthesizes a 503.
func (e *Engine) StaleWhileRevalidate(ctx context.Context, request *types.Request, store types.Store) *types.Response {
	key := utils.RequestKey(request)

	// The revalidation write must be able to outlive the response
	// already delivered to the caller.
	bgCtx := context.WithoutCancel(ctx)

	revalidated := make(chan *types.Snapshot, 1)
	go func() {
		fresh, err := e.fetcher.Fetch(bgCtx, request)
		if err != nil {
			e.logger.Debug("Revalidation fetch failed",
				zap.String("url", request.URL), zap.Error(err))
			revalidated <- nil
			return
		}

		if fresh.IsSuccess() {
			e.putBestEffort(bgCtx, store, key, fresh)
		}
		revalidated <- fresh
	}()

	stale, found, err := store.Match(ctx, key)
	if err != nil {
		e.logger.Debug("Stale lookup failed, treating as miss",
			zap.String("key", key), zap.Error(err))
	}

	if found {
		// Revalidation continues in the background; its result is
		// discarded here but its cache write still takes effect.
		e.recordOutcome("stale_while_revalidate", "stale")
		return fromCache(stale)
	}

	fresh := <-revalidated
	if fresh == nil {
		e.recordOutcome("stale_while_revalidate", "offline")
		return synthesizeOffline()
	}

	e.recordOutcome("stale_while_revalidate", "network")
	return fromNetwork(fresh)
}

// Passthrough forwards a request the layer does not intercept (non-GET
// methods). No store is touched; the live result comes back as-is and
// a failed fetch still produces a response.
func (e *Engine) Passthrough(ctx context.Context, request *types.Request) *types.Response {
	fresh, err := e.fetcher.Fetch(ctx, request)
	if err != nil {
		e.recordOutcome("passthrough", "offline")
		e.logger.Warn("Passthrough fetch failed",
			zap.String("method", request.Method),
			zap.String("url", request.URL),
			zap.Error(err))
		return synthesizeOffline()
	}

	e.recordOutcome("passthrough", "network")
	response := fromNetwork(fresh)
	response.Source = types.SourcePassthrough
	return response
}

// putBestEffort writes a snapshot without ever failing the primary
// response path. Write failures are logged and dropped.
func (e *Engine) putBestEffort(ctx context.Context, store types.Store, key string, snapshot *types.Snapshot) {
	if err := store.Put(ctx, key, snapshot); err != nil {
		e.recordOutcome("put", "error")
		e.logger.Error("Failed to cache snapshot",
			zap.String("store", store.Name()),
			zap.String("key", key),
			zap.Error(err))
	}
}

func (e *Engine) recordOutcome(strategyName, outcome string) {
	if e.metrics == nil {
		return
	}

	e.metrics.Counter("strategy_requests_total", map[string]string{
		"strategy": strategyName,
		"outcome":  outcome,
	}).Inc()
}
