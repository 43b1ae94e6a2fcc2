package saicache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-offline-cache/lifecycle"
	"github.com/saiset-co/sai-offline-cache/types"
)

type upstream struct {
	server    *httptest.Server
	assetHits atomic.Int64
	apiHits   atomic.Int64
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("shell"))
	})
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("index"))
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		u.assetHits.Add(1)
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte("console.log(1)"))
	})
	mux.HandleFunc("/api/designs", func(w http.ResponseWriter, r *http.Request) {
		u.apiHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"designs":[]}`))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("page body"))
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func testServiceConfig(upstreamURL string) *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:     "cache-test",
		Version:  "v1",
		Server:   &types.ServerConfig{Host: "127.0.0.1", Port: 0},
		Logger:   &types.LoggerConfig{Level: "error"},
		Store:    &types.StoreConfig{Type: "memory"},
		Upstream: &types.UpstreamConfig{BaseURL: upstreamURL},
		Precache: []string{"/", "/index.html"},
	}
}

// newActiveService builds a service against the test upstream and
// brings the request path up without binding the gateway listener.
func newActiveService(t *testing.T, upstreamURL string) *Service {
	t.Helper()

	s, err := NewServiceWithConfig(context.Background(), testServiceConfig(upstreamURL))
	require.NoError(t, err)

	require.NoError(t, s.provider.Start())
	require.NoError(t, s.fetcher.Start())
	t.Cleanup(func() {
		s.fetcher.Stop()
		s.provider.Stop()
		s.cancel()
	})

	require.NoError(t, s.lifecycle.Install(s.ctx))
	require.NoError(t, s.lifecycle.Activate(s.ctx))
	return s
}

func TestStartStopLifecycle(t *testing.T) {
	u := newUpstream(t)

	s, err := NewServiceWithConfig(context.Background(), testServiceConfig(u.server.URL))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Equal(t, lifecycle.StateActive, s.lifecycle.State())

	names, err := s.provider.ListNames(s.ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"static-v1", "dynamic-v1"}, names)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestStartFailsWhenUpstreamIsDown(t *testing.T) {
	u := newUpstream(t)
	u.server.Close()

	s, err := NewServiceWithConfig(context.Background(), testServiceConfig(u.server.URL))
	require.NoError(t, err)

	err = s.Start()
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrInstallFailed))
	assert.False(t, s.IsRunning())
}

func TestHandleStaticAssetIsCacheFirst(t *testing.T) {
	u := newUpstream(t)
	s := newActiveService(t, u.server.URL)

	request := &types.Request{Method: "GET", URL: u.server.URL + "/app.js"}

	first := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceNetwork, first.Source)
	assert.Equal(t, int64(1), u.assetHits.Load())

	// The second request never reaches the upstream.
	second := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceCache, second.Source)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int64(1), u.assetHits.Load())
}

func TestHandleAPIIsNetworkFirst(t *testing.T) {
	u := newUpstream(t)
	s := newActiveService(t, u.server.URL)

	request := &types.Request{Method: "GET", URL: u.server.URL + "/api/designs"}

	first := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceNetwork, first.Source)

	second := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceNetwork, second.Source)
	assert.Equal(t, int64(2), u.apiHits.Load())

	// With the upstream gone the cached snapshot takes over.
	u.server.Close()

	fallback := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceCache, fallback.Source)
	assert.Equal(t, first.Body, fallback.Body)
}

func TestHandleAPIOfflineWithEmptyCacheIs503(t *testing.T) {
	u := newUpstream(t)
	s := newActiveService(t, u.server.URL)
	u.server.Close()

	response := s.Handle(s.ctx, &types.Request{Method: "GET", URL: u.server.URL + "/api/never-seen"})

	assert.Equal(t, types.SourceSynthesized, response.Source)
	assert.Equal(t, 503, response.Status)
	assert.Contains(t, response.Headers["Content-Type"], "application/json")
}

func TestPrecachedShellLandsInStaticStore(t *testing.T) {
	u := newUpstream(t)
	s := newActiveService(t, u.server.URL)

	staticStore, err := s.provider.Open(s.ctx, "static-v1")
	require.NoError(t, err)

	snapshot, found, err := staticStore.Match(s.ctx, "GET "+u.server.URL+"/index.html")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("index"), snapshot.Body)
}

func TestHandleOtherIsStaleWhileRevalidate(t *testing.T) {
	u := newUpstream(t)
	s := newActiveService(t, u.server.URL)

	request := &types.Request{Method: "GET", URL: u.server.URL + "/page"}

	first := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceNetwork, first.Source)

	second := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceCache, second.Source)
	assert.Equal(t, []byte("page body"), second.Body)
}

func TestHandleNonGETPassesThrough(t *testing.T) {
	u := newUpstream(t)
	s := newActiveService(t, u.server.URL)

	request := &types.Request{Method: "POST", URL: u.server.URL + "/api/designs"}

	response := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourcePassthrough, response.Source)

	// A passthrough must leave no trace in either store, so repeating
	// it after the upstream dies cannot be served.
	u.server.Close()

	offline := s.Handle(s.ctx, request)
	assert.Equal(t, types.SourceSynthesized, offline.Source)
	assert.Equal(t, 503, offline.Status)
}
