package strategy

import (
	"time"

	"github.com/saiset-co/sai-offline-cache/types"
)

const offlineJSONBody = `{"error":"offline","message":"upstream unreachable and no cached snapshot available"}`

func fromCache(snapshot *types.Snapshot) *types.Response {
	return &types.Response{Snapshot: *snapshot, Source: types.SourceCache}
}

func fromNetwork(snapshot *types.Snapshot) *types.Response {
	return &types.Response{Snapshot: *snapshot, Source: types.SourceNetwork}
}

// synthesizeOffline is the cache-first (and stale-while-revalidate)
// failure surface: a plain 503 with body "Offline".
func synthesizeOffline() *types.Response {
	return &types.Response{
		Snapshot: types.Snapshot{
			Status:     503,
			Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
			Body:       []byte("Offline"),
			CapturedAt: time.Now(),
		},
		Source: types.SourceSynthesized,
	}
}

// synthesizeOfflineJSON is the network-first failure surface: a 503
// with a JSON content type and an explanatory body.
func synthesizeOfflineJSON() *types.Response {
	return &types.Response{
		Snapshot: types.Snapshot{
			Status:     503,
			Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:       []byte(offlineJSONBody),
			CapturedAt: time.Now(),
		},
		Source: types.SourceSynthesized,
	}
}
