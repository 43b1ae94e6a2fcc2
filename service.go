package saicache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/classifier"
	"github.com/saiset-co/sai-offline-cache/client"
	"github.com/saiset-co/sai-offline-cache/config"
	"github.com/saiset-co/sai-offline-cache/health"
	"github.com/saiset-co/sai-offline-cache/lifecycle"
	"github.com/saiset-co/sai-offline-cache/logger"
	"github.com/saiset-co/sai-offline-cache/maintenance"
	"github.com/saiset-co/sai-offline-cache/metrics"
	"github.com/saiset-co/sai-offline-cache/notifier"
	"github.com/saiset-co/sai-offline-cache/server"
	"github.com/saiset-co/sai-offline-cache/store"
	"github.com/saiset-co/sai-offline-cache/strategy"
	"github.com/saiset-co/sai-offline-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Service is the caching layer as one explicit object: it owns the
// store provider, the lifecycle manager and the strategy engine, and
// dispatches every intercepted request by classification. Construct it
// once per process and inject it wherever requests cross the boundary.
type Service struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        *types.ServiceConfig
	logger     types.Logger
	metrics    types.MetricsManager
	provider   types.StoreProvider
	fetcher    types.Fetcher
	classifier *classifier.Classifier
	engine     *strategy.Engine
	lifecycle  *lifecycle.Manager
	hub        *notifier.Hub
	sweeper    *maintenance.Sweeper
	health     *health.Manager
	httpServer *server.HTTPServer
	generation types.Generation
	baseURL    string
	state      atomic.Value
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	configManager, err := config.NewConfigurationManager(configPath)
	if err != nil {
		return nil, err
	}

	return NewServiceWithConfig(ctx, configManager.GetConfig())
}

func NewServiceWithConfig(ctx context.Context, cfg *types.ServiceConfig) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		cancel()
		return nil, err
	}

	var metricsManager types.MetricsManager
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsManager, err = metrics.NewPrometheusMetrics(log, cfg.Metrics)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	provider, err := store.NewStoreProvider(serviceCtx, cfg.Store, log, metricsManager)
	if err != nil {
		cancel()
		return nil, err
	}

	fetcher := client.NewHTTPFetcher(serviceCtx, log, cfg.Upstream)

	var hub *notifier.Hub
	var lifecycleNotifier types.Notifier
	if cfg.Notifier != nil && cfg.Notifier.Enabled {
		hub = notifier.NewHub(serviceCtx, log, cfg.Notifier)
		lifecycleNotifier = hub
	}

	s := &Service{
		ctx:        serviceCtx,
		cancel:     cancel,
		cfg:        cfg,
		logger:     log,
		metrics:    metricsManager,
		provider:   provider,
		fetcher:    fetcher,
		classifier: classifier.New(cfg.Classifier),
		engine:     strategy.NewEngine(log, metricsManager, fetcher),
		lifecycle:  lifecycle.NewManager(log, provider, fetcher, lifecycleNotifier, cfg),
		hub:        hub,
		health:     health.NewManager(),
		generation: cfg.Generation(),
		baseURL:    strings.TrimSuffix(cfg.Upstream.BaseURL, "/"),
	}

	if cfg.Maintenance != nil && cfg.Maintenance.Enabled {
		s.sweeper = maintenance.NewSweeper(serviceCtx, log, provider, s.generation, cfg.Maintenance)
	}

	s.httpServer = server.NewHTTPServer(serviceCtx, log, cfg, s, s.health, metricsManager)

	s.registerHealthCheckers()
	s.state.Store(StateStopped)
	return s, nil
}

// Start brings components up leaves-first, then installs and activates
// the current generation before the gateway begins accepting traffic.
// A failed install is fatal and aborts startup.
func (s *Service) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	s.logger.Info("Starting caching layer",
		zap.String("name", s.cfg.Name),
		zap.String("generation", s.generation.Version))

	if s.metrics != nil {
		if err := s.metrics.Start(); err != nil {
			return s.abortStart(err)
		}
	}

	if err := s.provider.Start(); err != nil {
		return s.abortStart(err)
	}

	if err := s.fetcher.Start(); err != nil {
		return s.abortStart(err)
	}

	if s.hub != nil {
		if err := s.hub.Start(); err != nil {
			return s.abortStart(err)
		}
	}

	if err := s.lifecycle.Install(s.ctx); err != nil {
		return s.abortStart(err)
	}

	if err := s.lifecycle.Activate(s.ctx); err != nil {
		return s.abortStart(err)
	}

	if s.sweeper != nil {
		if err := s.sweeper.Start(); err != nil {
			return s.abortStart(err)
		}
	}

	if err := s.httpServer.Start(); err != nil {
		return s.abortStart(err)
	}

	s.state.Store(StateRunning)
	s.logger.Info("Caching layer active",
		zap.Strings("retained_stores", s.generation.RetainedNames()))
	return nil
}

func (s *Service) abortStart(err error) error {
	s.state.Store(StateStopped)
	s.shutdownComponents()
	return err
}

func (s *Service) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(StateStopped)
		s.cancel()
	}()

	s.shutdownComponents()
	s.logger.Info("Caching layer stopped gracefully")
	return nil
}

func (s *Service) shutdownComponents() {
	if s.httpServer != nil && s.httpServer.IsRunning() {
		if err := s.httpServer.Stop(); err != nil {
			s.logger.Error("Failed to stop gateway server", zap.Error(err))
		}
	}

	if s.sweeper != nil && s.sweeper.IsRunning() {
		if err := s.sweeper.Stop(); err != nil {
			s.logger.Error("Failed to stop sweeper", zap.Error(err))
		}
	}

	if s.hub != nil && s.hub.IsRunning() {
		if err := s.hub.Stop(); err != nil {
			s.logger.Error("Failed to stop notifier hub", zap.Error(err))
		}
	}

	if s.fetcher.IsRunning() {
		if err := s.fetcher.Stop(); err != nil {
			s.logger.Error("Failed to stop fetcher", zap.Error(err))
		}
	}

	if s.provider.IsRunning() {
		if err := s.provider.Stop(); err != nil {
			s.logger.Error("Failed to stop store provider", zap.Error(err))
		}
	}

	if s.metrics != nil && s.metrics.IsRunning() {
		if err := s.metrics.Stop(); err != nil {
			s.logger.Error("Failed to stop metrics", zap.Error(err))
		}
	}
}

func (s *Service) IsRunning() bool {
	return s.state.Load().(State) == StateRunning
}

// Wait blocks until the service context is cancelled.
func (s *Service) Wait() {
	<-s.ctx.Done()
}

func (s *Service) Lifecycle() *lifecycle.Manager {
	return s.lifecycle
}

// Handle is the interception entry point. It always returns a
// response: network errors degrade to cache, cache misses degrade to a
// synthesized 503, and nothing propagates upward as a fault.
func (s *Service) Handle(ctx context.Context, request *types.Request) *types.Response {
	start := time.Now()

	if !strings.EqualFold(request.Method, "GET") {
		return s.observe(start, "passthrough", s.engine.Passthrough(ctx, request))
	}

	class := s.classifier.Classify(request)

	switch class {
	case types.ClassStaticAsset:
		staticStore, err := s.openStore(ctx, s.generation.StaticStoreName())
		if err != nil {
			return s.observe(start, class.String(), s.engine.Passthrough(ctx, request))
		}
		return s.observe(start, class.String(), s.engine.CacheFirst(ctx, request, staticStore))

	case types.ClassAPI:
		dynamicStore, err := s.openStore(ctx, s.generation.DynamicStoreName())
		if err != nil {
			return s.observe(start, class.String(), s.engine.Passthrough(ctx, request))
		}
		return s.observe(start, class.String(), s.engine.NetworkFirst(ctx, request, dynamicStore))

	default:
		dynamicStore, err := s.openStore(ctx, s.generation.DynamicStoreName())
		if err != nil {
			return s.observe(start, class.String(), s.engine.Passthrough(ctx, request))
		}
		return s.observe(start, class.String(), s.engine.StaleWhileRevalidate(ctx, request, dynamicStore))
	}
}

func (s *Service) openStore(ctx context.Context, name string) (types.Store, error) {
	openedStore, err := s.provider.Open(ctx, name)
	if err != nil {
		// Storage trouble must not take the boundary down; degrade to
		// a plain network passthrough.
		s.logger.Error("Failed to open store, degrading to passthrough",
			zap.String("store", name), zap.Error(err))
		return nil, err
	}
	return openedStore, nil
}

func (s *Service) observe(start time.Time, class string, response *types.Response) *types.Response {
	if s.metrics != nil {
		s.metrics.Histogram("handle_duration_seconds",
			[]float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
			map[string]string{"class": class},
		).ObserveDuration(start)

		s.metrics.Counter("handled_requests_total", map[string]string{
			"class":  class,
			"source": response.Source,
		}).Inc()
	}
	return response
}

func (s *Service) registerHealthCheckers() {
	s.health.RegisterChecker("store", func(ctx context.Context) types.HealthCheck {
		if !s.provider.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "store provider not running"}
		}

		if _, err := s.provider.ListNames(ctx); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	s.health.RegisterChecker("lifecycle", func(ctx context.Context) types.HealthCheck {
		state := s.lifecycle.State()
		if state != lifecycle.StateActive {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "generation not active: " + state.String(),
			}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})
}
