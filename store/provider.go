package store

import (
	"context"
	"time"

	"github.com/saiset-co/sai-offline-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customProviderCreators = make(map[string]types.StoreProviderCreator)

func RegisterStoreProvider(providerName string, creator types.StoreProviderCreator) {
	customProviderCreators[providerName] = creator
}

func NewStoreProvider(ctx context.Context, config *types.StoreConfig, logger types.Logger, metrics types.MetricsManager) (types.StoreProvider, error) {
	var impl types.StoreProvider
	var err error

	switch config.Type {
	case "memory":
		impl, err = NewMemoryProvider(logger)
	case "clover":
		impl, err = NewCloverProvider(logger, config)
	case "sqlite":
		impl, err = NewSQLiteProvider(logger, config)
	case "redis":
		impl, err = NewRedisProvider(ctx, logger, config)
	default:
		if creator, exists := customProviderCreators[config.Type]; exists {
			impl, err = creator(config, logger)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedProvider(metrics, impl), nil
}

type instrumentedProvider struct {
	impl    types.StoreProvider
	metrics types.MetricsManager
}

func newInstrumentedProvider(metrics types.MetricsManager, impl types.StoreProvider) types.StoreProvider {
	return &instrumentedProvider{impl: impl, metrics: metrics}
}

func (ip *instrumentedProvider) Start() error    { return ip.impl.Start() }
func (ip *instrumentedProvider) Stop() error     { return ip.impl.Stop() }
func (ip *instrumentedProvider) IsRunning() bool { return ip.impl.IsRunning() }

func (ip *instrumentedProvider) Open(ctx context.Context, name string) (types.Store, error) {
	impl, err := ip.impl.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &instrumentedStore{impl: impl, metrics: ip.metrics}, nil
}

func (ip *instrumentedProvider) ListNames(ctx context.Context) ([]string, error) {
	return ip.impl.ListNames(ctx)
}

func (ip *instrumentedProvider) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := ip.impl.Delete(ctx, name)
	ip.recordMetric("delete_store", resultOf(err), time.Since(start))
	return err
}

func (ip *instrumentedProvider) recordMetric(operation, result string, duration time.Duration) {
	recordStoreMetric(ip.metrics, operation, result, duration)
}

type instrumentedStore struct {
	impl    types.Store
	metrics types.MetricsManager
}

func (is *instrumentedStore) Name() string { return is.impl.Name() }

func (is *instrumentedStore) Match(ctx context.Context, key string) (*types.Snapshot, bool, error) {
	start := time.Now()
	snapshot, found, err := is.impl.Match(ctx, key)

	result := "miss"
	if found {
		result = "hit"
	}
	if err != nil {
		result = "error"
	}

	recordStoreMetric(is.metrics, "match", result, time.Since(start))
	return snapshot, found, err
}

func (is *instrumentedStore) Put(ctx context.Context, key string, snapshot *types.Snapshot) error {
	start := time.Now()
	err := is.impl.Put(ctx, key, snapshot)
	recordStoreMetric(is.metrics, "put", resultOf(err), time.Since(start))
	return err
}

func (is *instrumentedStore) Keys(ctx context.Context) ([]string, error) {
	return is.impl.Keys(ctx)
}

func (is *instrumentedStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	start := time.Now()
	pruned, err := is.impl.Prune(ctx, olderThan)
	recordStoreMetric(is.metrics, "prune", resultOf(err), time.Since(start))
	return pruned, err
}

func recordStoreMetric(metrics types.MetricsManager, operation, result string, duration time.Duration) {
	metrics.Counter("store_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	metrics.Histogram("store_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).Observe(duration.Seconds())
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
