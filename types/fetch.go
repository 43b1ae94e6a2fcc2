package types

import (
	"context"
)

// Fetcher performs the single live network attempt a strategy is
// allowed per request. Implementations never retry internally; a
// retry in this system is the user re-issuing the request.
type Fetcher interface {
	LifecycleManager
	Fetch(ctx context.Context, request *Request) (*Snapshot, error)
}
