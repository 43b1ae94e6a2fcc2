package lifecycle

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type State int32

const (
	StateUninstalled State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "uninstalled"
	}
}

// Manager owns store names and their generation lifecycle. Nothing
// else creates or deletes stores; the strategies only write contents
// into stores they are handed.
type Manager struct {
	logger     types.Logger
	provider   types.StoreProvider
	fetcher    types.Fetcher
	notifier   types.Notifier
	generation types.Generation
	baseURL    string
	precache   []string
	state      atomic.Int32
	activateMu sync.Mutex
}

func NewManager(logger types.Logger, provider types.StoreProvider, fetcher types.Fetcher, notifier types.Notifier, config *types.ServiceConfig) *Manager {
	return &Manager{
		logger:     logger,
		provider:   provider,
		fetcher:    fetcher,
		notifier:   notifier,
		generation: config.Generation(),
		baseURL:    strings.TrimSuffix(config.Upstream.BaseURL, "/"),
		precache:   config.Precache,
	}
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) Generation() types.Generation {
	return m.generation
}

// Install provisions the generation's static store with the configured
// asset list. All assets must fetch and store successfully; any
// failure fails the whole install and is surfaced to the caller, never
// retried here.
func (m *Manager) Install(ctx context.Context) error {
	if len(m.precache) == 0 {
		return types.ErrPrecacheListEmpty
	}

	if !m.state.CompareAndSwap(int32(StateUninstalled), int32(StateInstalling)) {
		return types.ErrAlreadyInstalling
	}

	runID := uuid.New().String()
	m.logger.Info("Installing generation",
		zap.String("run_id", runID),
		zap.String("generation", m.generation.Version),
		zap.Int("assets", len(m.precache)))

	staticStore, err := m.provider.Open(ctx, m.generation.StaticStoreName())
	if err != nil {
		m.state.Store(int32(StateUninstalled))
		return types.Errorf(types.ErrInstallFailed, "open static store: %v", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	for _, assetPath := range m.precache {
		assetPath := assetPath
		g.Go(func() error {
			return m.precacheAsset(gCtx, staticStore, assetPath)
		})
	}

	if err := g.Wait(); err != nil {
		// No partial install is committed as far as readiness goes;
		// leftover snapshots in the static store are overwritten by
		// the next attempt.
		m.state.Store(int32(StateUninstalled))
		m.logger.Error("Install failed",
			zap.String("run_id", runID),
			zap.Error(err))
		return types.Errorf(types.ErrInstallFailed, "%v", err)
	}

	m.state.Store(int32(StateInstalled))
	m.logger.Info("Install complete",
		zap.String("run_id", runID),
		zap.String("store", staticStore.Name()))

	m.broadcast(types.EventInstalled)
	return nil
}

func (m *Manager) precacheAsset(ctx context.Context, staticStore types.Store, assetPath string) error {
	request := &types.Request{
		Method: "GET",
		URL:    m.assetURL(assetPath),
	}

	snapshot, err := m.fetcher.Fetch(ctx, request)
	if err != nil {
		return types.WrapError(err, "asset "+assetPath)
	}

	if !snapshot.IsSuccess() {
		return types.NewErrorf("asset %s: HTTP %d", assetPath, snapshot.Status)
	}

	key := utils.RequestKey(request)
	if err := staticStore.Put(ctx, key, snapshot); err != nil {
		return types.WrapError(err, "asset "+assetPath)
	}

	m.logger.Debug("Asset precached",
		zap.String("asset", assetPath),
		zap.Int("bytes", len(snapshot.Body)))
	return nil
}

func (m *Manager) assetURL(assetPath string) string {
	if strings.HasPrefix(assetPath, "http://") || strings.HasPrefix(assetPath, "https://") {
		return assetPath
	}
	if !strings.HasPrefix(assetPath, "/") {
		assetPath = "/" + assetPath
	}
	return m.baseURL + assetPath
}

// Activate reclaims storage from prior generations and takes over
// request handling. It deletes every store name outside the retained
// set, tolerates zero matches and never deletes the two retained names
// even when empty. Idempotent; two concurrent calls are serialized.
func (m *Manager) Activate(ctx context.Context) error {
	m.activateMu.Lock()
	defer m.activateMu.Unlock()

	previous := m.State()
	if previous != StateInstalled && previous != StateActive {
		return types.Errorf(types.ErrNotInstalled, "state: %s", previous)
	}

	m.state.Store(int32(StateActivating))

	// The dynamic store must exist by activation time so ListNames
	// reflects the full retained set.
	if _, err := m.provider.Open(ctx, m.generation.DynamicStoreName()); err != nil {
		m.state.Store(int32(previous))
		return types.Errorf(types.ErrActivateFailed, "open dynamic store: %v", err)
	}

	names, err := m.provider.ListNames(ctx)
	if err != nil {
		m.state.Store(int32(previous))
		return types.Errorf(types.ErrActivateFailed, "list stores: %v", err)
	}

	retained := make(map[string]struct{})
	for _, name := range m.generation.RetainedNames() {
		retained[name] = struct{}{}
	}

	deleted := 0
	for _, name := range names {
		if _, keep := retained[name]; keep {
			continue
		}

		if err := m.provider.Delete(ctx, name); err != nil {
			// Stale-store deletion is storage reclamation, not a
			// correctness dependency; log and keep going.
			m.logger.Warn("Failed to delete stale store",
				zap.String("store", name), zap.Error(err))
			continue
		}

		deleted++
		m.logger.Info("Deleted stale store", zap.String("store", name))
	}

	m.state.Store(int32(StateActive))
	m.logger.Info("Generation activated",
		zap.String("generation", m.generation.Version),
		zap.Int("stale_stores_deleted", deleted))

	m.broadcast(types.EventActivated)
	return nil
}

func (m *Manager) broadcast(eventType string) {
	if m.notifier == nil {
		return
	}

	m.notifier.Broadcast(types.LifecycleEvent{
		Type:       eventType,
		Generation: m.generation.Version,
		Timestamp:  time.Now(),
	})
}
