package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
}

// RedisProvider maps each named store to a redis hash
// ({prefix}:store:{name}) and tracks the name set in a registry set so
// ListNames sees empty stores too.
type RedisProvider struct {
	ctx    context.Context
	logger types.Logger
	config *RedisConfig
	client *redis.Client
	codec  *Codec
	state  atomic.Value
}

func NewRedisProvider(ctx context.Context, logger types.Logger, config *types.StoreConfig) (*RedisProvider, error) {
	redisConfig := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "sai-offline-cache",
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis store config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	rp := &RedisProvider{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
		client: client,
		codec:  NewCodec(config.Compression),
	}
	rp.state.Store(StateStopped)
	return rp, nil
}

func (rp *RedisProvider) registryKey() string {
	return rp.config.KeyPrefix + ":stores"
}

func (rp *RedisProvider) storeKey(name string) string {
	return rp.config.KeyPrefix + ":store:" + name
}

func (rp *RedisProvider) Start() error {
	if !rp.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrStoreAlreadyRunning
	}

	rp.logger.Info("Redis store provider started",
		zap.String("addr", rp.client.Options().Addr),
		zap.String("prefix", rp.config.KeyPrefix))
	return nil
}

func (rp *RedisProvider) Stop() error {
	if !rp.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrStoreNotRunning
	}

	defer rp.state.Store(StateStopped)

	if err := rp.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}
	return nil
}

func (rp *RedisProvider) IsRunning() bool {
	return rp.state.Load().(State) == StateRunning
}

func (rp *RedisProvider) Open(ctx context.Context, name string) (types.Store, error) {
	if name == "" {
		return nil, types.ErrStoreNameEmpty
	}

	if err := rp.client.SAdd(ctx, rp.registryKey(), name).Err(); err != nil {
		return nil, types.WrapError(err, "failed to register store")
	}

	return &redisStore{
		client:  rp.client,
		name:    name,
		hashKey: rp.storeKey(name),
		codec:   rp.codec,
	}, nil
}

func (rp *RedisProvider) ListNames(ctx context.Context) ([]string, error) {
	names, err := rp.client.SMembers(ctx, rp.registryKey()).Result()
	if err != nil {
		return nil, types.WrapError(err, "failed to list stores")
	}
	return names, nil
}

func (rp *RedisProvider) Delete(ctx context.Context, name string) error {
	if err := rp.client.Del(ctx, rp.storeKey(name)).Err(); err != nil {
		return types.Errorf(types.ErrStoreDeleteFailed, "store %s: %v", name, err)
	}

	if err := rp.client.SRem(ctx, rp.registryKey(), name).Err(); err != nil {
		return types.Errorf(types.ErrStoreDeleteFailed, "store %s: %v", name, err)
	}
	return nil
}

type redisStore struct {
	client  *redis.Client
	name    string
	hashKey string
	codec   *Codec
}

func (rs *redisStore) Name() string { return rs.name }

func (rs *redisStore) Match(ctx context.Context, key string) (*types.Snapshot, bool, error) {
	data, err := rs.client.HGet(ctx, rs.hashKey, key).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.WrapError(err, "failed to read snapshot")
	}

	snapshot, err := rs.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func (rs *redisStore) Put(ctx context.Context, key string, snapshot *types.Snapshot) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	data, err := rs.codec.Encode(snapshot)
	if err != nil {
		return types.Errorf(types.ErrStorePutFailed, "encode: %v", err)
	}

	if err := rs.client.HSet(ctx, rs.hashKey, key, data).Err(); err != nil {
		return types.Errorf(types.ErrStorePutFailed, "key %s: %v", key, err)
	}
	return nil
}

func (rs *redisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := rs.client.HKeys(ctx, rs.hashKey).Result()
	if err != nil {
		return nil, types.WrapError(err, "failed to list keys")
	}
	return keys, nil
}

func (rs *redisStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := rs.client.HGetAll(ctx, rs.hashKey).Result()
	if err != nil {
		return 0, types.WrapError(err, "failed to scan store")
	}

	pruned := 0
	for key, value := range entries {
		snapshot, err := rs.codec.Decode([]byte(value))
		if err != nil {
			// Corrupted entries are dropped along with the stale ones.
			rs.client.HDel(ctx, rs.hashKey, key)
			pruned++
			continue
		}

		if snapshot.CapturedAt.Before(olderThan) {
			if err := rs.client.HDel(ctx, rs.hashKey, key).Err(); err != nil {
				return pruned, types.WrapError(err, "failed to delete stale snapshot")
			}
			pruned++
		}
	}
	return pruned, nil
}
