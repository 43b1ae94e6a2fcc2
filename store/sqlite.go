package store

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stores (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS snapshots (
	store       TEXT    NOT NULL,
	key         TEXT    NOT NULL,
	data        BLOB    NOT NULL,
	captured_at INTEGER NOT NULL,
	PRIMARY KEY (store, key)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots (store, captured_at);
`

// SQLiteProvider keeps all named stores in a single database file, one
// row per snapshot, keyed by (store, request key).
type SQLiteProvider struct {
	db     *sql.DB
	logger types.Logger
	config *types.StoreConfig
	codec  *Codec
	state  atomic.Value
}

func NewSQLiteProvider(logger types.Logger, config *types.StoreConfig) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open sqlite database")
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, types.WrapError(err, "failed to initialize sqlite schema")
	}

	sp := &SQLiteProvider{
		db:     db,
		logger: logger,
		config: config,
		codec:  NewCodec(config.Compression),
	}
	sp.state.Store(StateStopped)
	return sp, nil
}

func (sp *SQLiteProvider) Start() error {
	if !sp.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrStoreAlreadyRunning
	}

	sp.logger.Info("SQLite store provider started", zap.String("path", sp.config.Path))
	return nil
}

func (sp *SQLiteProvider) Stop() error {
	if !sp.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrStoreNotRunning
	}

	defer sp.state.Store(StateStopped)

	if err := sp.db.Close(); err != nil {
		return types.WrapError(err, "failed to close sqlite database")
	}

	sp.logger.Info("SQLite store provider stopped gracefully")
	return nil
}

func (sp *SQLiteProvider) IsRunning() bool {
	return sp.state.Load().(State) == StateRunning
}

func (sp *SQLiteProvider) Open(ctx context.Context, name string) (types.Store, error) {
	if name == "" {
		return nil, types.ErrStoreNameEmpty
	}

	_, err := sp.db.ExecContext(ctx, `INSERT OR IGNORE INTO stores (name) VALUES (?)`, name)
	if err != nil {
		return nil, types.WrapError(err, "failed to register store")
	}

	return &sqliteStore{db: sp.db, name: name, codec: sp.codec}, nil
}

func (sp *SQLiteProvider) ListNames(ctx context.Context) ([]string, error) {
	rows, err := sp.db.QueryContext(ctx, `SELECT name FROM stores`)
	if err != nil {
		return nil, types.WrapError(err, "failed to list stores")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, types.WrapError(err, "failed to scan store name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (sp *SQLiteProvider) Delete(ctx context.Context, name string) error {
	if _, err := sp.db.ExecContext(ctx, `DELETE FROM snapshots WHERE store = ?`, name); err != nil {
		return types.Errorf(types.ErrStoreDeleteFailed, "store %s: %v", name, err)
	}

	if _, err := sp.db.ExecContext(ctx, `DELETE FROM stores WHERE name = ?`, name); err != nil {
		return types.Errorf(types.ErrStoreDeleteFailed, "store %s: %v", name, err)
	}
	return nil
}

type sqliteStore struct {
	db    *sql.DB
	name  string
	codec *Codec
}

func (ss *sqliteStore) Name() string { return ss.name }

func (ss *sqliteStore) Match(ctx context.Context, key string) (*types.Snapshot, bool, error) {
	var data []byte
	err := ss.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE store = ? AND key = ?`, ss.name, key).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.WrapError(err, "failed to read snapshot")
	}

	snapshot, err := ss.codec.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func (ss *sqliteStore) Put(ctx context.Context, key string, snapshot *types.Snapshot) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	data, err := ss.codec.Encode(snapshot)
	if err != nil {
		return types.Errorf(types.ErrStorePutFailed, "encode: %v", err)
	}

	_, err = ss.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (store, key, data, captured_at) VALUES (?, ?, ?, ?)`,
		ss.name, key, data, snapshot.CapturedAt.UnixNano())
	if err != nil {
		return types.Errorf(types.ErrStorePutFailed, "key %s: %v", key, err)
	}
	return nil
}

func (ss *sqliteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT key FROM snapshots WHERE store = ?`, ss.name)
	if err != nil {
		return nil, types.WrapError(err, "failed to list keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan key")
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (ss *sqliteStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := ss.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE store = ? AND captured_at < ?`,
		ss.name, olderThan.UnixNano())
	if err != nil {
		return 0, types.WrapError(err, "failed to prune snapshots")
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(pruned), nil
}
