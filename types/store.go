package types

import (
	"context"
	"time"
)

// Store is a named, durable key-value container of request identity to
// response snapshot. Each Put is atomic for its single key only; there
// are no cross-key transactions.
type Store interface {
	Name() string
	Match(ctx context.Context, key string) (*Snapshot, bool, error)
	Put(ctx context.Context, key string, snapshot *Snapshot) error
	Keys(ctx context.Context) ([]string, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// StoreProvider owns store names. Open is idempotent and creates the
// store on first use; Delete of a store that is mid-read surfaces as a
// miss on the reader side, never a crash.
type StoreProvider interface {
	LifecycleManager
	Open(ctx context.Context, name string) (Store, error)
	ListNames(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type StoreProviderCreator func(config *StoreConfig, logger Logger) (StoreProvider, error)
