package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-offline-cache/types"
)

// MemoryProvider keeps stores in process memory. It does not survive
// restarts and exists for tests and ephemeral deployments; durable
// setups use the clover, sqlite or redis backends.
type MemoryProvider struct {
	logger types.Logger
	mu     sync.RWMutex
	stores map[string]*memoryStore
	state  atomic.Value
}

func NewMemoryProvider(logger types.Logger) (*MemoryProvider, error) {
	mp := &MemoryProvider{
		logger: logger,
		stores: make(map[string]*memoryStore),
	}
	mp.state.Store(StateStopped)
	return mp, nil
}

func (mp *MemoryProvider) Start() error {
	if !mp.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrStoreAlreadyRunning
	}
	return nil
}

func (mp *MemoryProvider) Stop() error {
	if !mp.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrStoreNotRunning
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stores = make(map[string]*memoryStore)
	return nil
}

func (mp *MemoryProvider) IsRunning() bool {
	return mp.state.Load().(State) == StateRunning
}

func (mp *MemoryProvider) Open(ctx context.Context, name string) (types.Store, error) {
	if name == "" {
		return nil, types.ErrStoreNameEmpty
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if store, exists := mp.stores[name]; exists {
		return store, nil
	}

	store := &memoryStore{
		name:      name,
		snapshots: make(map[string]*types.Snapshot),
	}
	mp.stores[name] = store
	return store, nil
}

func (mp *MemoryProvider) ListNames(ctx context.Context) ([]string, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	names := make([]string, 0, len(mp.stores))
	for name := range mp.stores {
		names = append(names, name)
	}
	return names, nil
}

func (mp *MemoryProvider) Delete(ctx context.Context, name string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if store, exists := mp.stores[name]; exists {
		store.clear()
		delete(mp.stores, name)
	}
	return nil
}

type memoryStore struct {
	name      string
	mu        sync.RWMutex
	snapshots map[string]*types.Snapshot
}

func (ms *memoryStore) Name() string { return ms.name }

func (ms *memoryStore) Match(ctx context.Context, key string) (*types.Snapshot, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	snapshot, exists := ms.snapshots[key]
	if !exists {
		return nil, false, nil
	}
	return snapshot.Clone(), true, nil
}

func (ms *memoryStore) Put(ctx context.Context, key string, snapshot *types.Snapshot) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// A deleted store keeps accepting writes from in-flight strategy
	// invocations; the provider has already dropped its name so the
	// contents are unreachable garbage.
	ms.snapshots[key] = snapshot.Clone()
	return nil
}

func (ms *memoryStore) Keys(ctx context.Context) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	keys := make([]string, 0, len(ms.snapshots))
	for key := range ms.snapshots {
		keys = append(keys, key)
	}
	return keys, nil
}

func (ms *memoryStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	pruned := 0
	for key, snapshot := range ms.snapshots {
		if snapshot.CapturedAt.Before(olderThan) {
			delete(ms.snapshots, key)
			pruned++
		}
	}
	return pruned, nil
}

func (ms *memoryStore) clear() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.snapshots = make(map[string]*types.Snapshot)
}
