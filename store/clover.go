package store

import (
	"context"
	"encoding/base64"
	"sync/atomic"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
)

// CloverProvider persists each named store as a clover collection.
// Documents carry the request key, the encoded snapshot and a capture
// timestamp for pruning.
type CloverProvider struct {
	db     *clover.DB
	logger types.Logger
	config *types.StoreConfig
	codec  *Codec
	state  atomic.Value
}

func NewCloverProvider(logger types.Logger, config *types.StoreConfig) (*CloverProvider, error) {
	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover database")
	}

	cp := &CloverProvider{
		db:     db,
		logger: logger,
		config: config,
		codec:  NewCodec(config.Compression),
	}
	cp.state.Store(StateStopped)
	return cp, nil
}

func (cp *CloverProvider) Start() error {
	if !cp.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrStoreAlreadyRunning
	}

	cp.logger.Info("Clover store provider started", zap.String("path", cp.config.Path))
	return nil
}

func (cp *CloverProvider) Stop() error {
	if !cp.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrStoreNotRunning
	}

	defer cp.state.Store(StateStopped)

	if err := cp.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover database")
	}

	cp.logger.Info("Clover store provider stopped gracefully")
	return nil
}

func (cp *CloverProvider) IsRunning() bool {
	return cp.state.Load().(State) == StateRunning
}

func (cp *CloverProvider) Open(ctx context.Context, name string) (types.Store, error) {
	if name == "" {
		return nil, types.ErrStoreNameEmpty
	}

	exists, err := cp.db.HasCollection(name)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := cp.db.CreateCollection(name); err != nil {
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	return &cloverStore{db: cp.db, name: name, codec: cp.codec}, nil
}

func (cp *CloverProvider) ListNames(ctx context.Context) ([]string, error) {
	names, err := cp.db.ListCollections()
	if err != nil {
		return nil, types.WrapError(err, "failed to list collections")
	}
	return names, nil
}

func (cp *CloverProvider) Delete(ctx context.Context, name string) error {
	exists, err := cp.db.HasCollection(name)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return nil
	}

	if err := cp.db.DropCollection(name); err != nil {
		return types.Errorf(types.ErrStoreDeleteFailed, "collection %s: %v", name, err)
	}
	return nil
}

type cloverStore struct {
	db    *clover.DB
	name  string
	codec *Codec
}

func (cs *cloverStore) Name() string { return cs.name }

func (cs *cloverStore) Match(ctx context.Context, key string) (*types.Snapshot, bool, error) {
	exists, err := cs.db.HasCollection(cs.name)
	if err != nil || !exists {
		// Store deleted mid-read: a miss, not a failure.
		return nil, false, nil
	}

	doc, err := cs.db.Query(cs.name).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil || doc == nil {
		return nil, false, nil
	}

	encoded, ok := doc.Get("data").(string)
	if !ok {
		return nil, false, types.ErrSnapshotCorrupted
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, types.Errorf(types.ErrSnapshotCorrupted, "base64: %v", err)
	}

	snapshot, err := cs.codec.Decode(raw)
	if err != nil {
		return nil, false, err
	}

	return snapshot, true, nil
}

func (cs *cloverStore) Put(ctx context.Context, key string, snapshot *types.Snapshot) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	raw, err := cs.codec.Encode(snapshot)
	if err != nil {
		return types.Errorf(types.ErrStorePutFailed, "encode: %v", err)
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	capturedAt := snapshot.CapturedAt.UnixNano()

	query := cs.db.Query(cs.name).Where(clover.Field("key").Eq(key))

	count, err := query.Count()
	if err != nil {
		return types.Errorf(types.ErrStorePutFailed, "count: %v", err)
	}

	if count > 0 {
		err = query.Update(map[string]interface{}{
			"data":        encoded,
			"captured_at": capturedAt,
		})
		if err != nil {
			return types.Errorf(types.ErrStorePutFailed, "update: %v", err)
		}
		return nil
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("data", encoded)
	doc.Set("captured_at", capturedAt)

	if err := cs.db.Insert(cs.name, doc); err != nil {
		return types.Errorf(types.ErrStorePutFailed, "insert: %v", err)
	}
	return nil
}

func (cs *cloverStore) Keys(ctx context.Context) ([]string, error) {
	docs, err := cs.db.Query(cs.name).FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to list documents")
	}

	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (cs *cloverStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	query := cs.db.Query(cs.name).Where(clover.Field("captured_at").Lt(olderThan.UnixNano()))

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count stale snapshots")
	}

	if count == 0 {
		return 0, nil
	}

	if err := query.Delete(); err != nil {
		return 0, types.WrapError(err, "failed to delete stale snapshots")
	}
	return count, nil
}
