package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline-cache/types"
)

// Sweeper periodically prunes aged snapshots from the dynamic store.
// Pruning sacrifices offline coverage for storage, so it is an opt-in
// schedule, never part of the request path.
type Sweeper struct {
	ctx        context.Context
	logger     types.Logger
	provider   types.StoreProvider
	generation types.Generation
	config     *types.MaintenanceConfig
	scheduler  *cron.Cron
	running    int32
}

func NewSweeper(ctx context.Context, logger types.Logger, provider types.StoreProvider, generation types.Generation, config *types.MaintenanceConfig) *Sweeper {
	return &Sweeper{
		ctx:        ctx,
		logger:     logger,
		provider:   provider,
		generation: generation,
		config:     config,
		scheduler:  cron.New(),
	}
}

func (s *Sweeper) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrSweeperIsRunning
	}

	_, err := s.scheduler.AddFunc(s.config.Schedule, s.sweep)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return types.Errorf(types.ErrScheduleInvalid, "%q: %v", s.config.Schedule, err)
	}

	s.scheduler.Start()
	s.logger.Info("Snapshot sweeper started",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("max_age", s.config.MaxAge))
	return nil
}

func (s *Sweeper) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrSweeperNotRunning
	}

	stopCtx := s.scheduler.Stop()

	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("Sweeper stop timed out waiting for running job")
	}
	return nil
}

func (s *Sweeper) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	dynamicStore, err := s.provider.Open(ctx, s.generation.DynamicStoreName())
	if err != nil {
		s.logger.Error("Sweep failed to open dynamic store", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-s.config.MaxAge)
	pruned, err := dynamicStore.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		return
	}

	if pruned > 0 {
		s.logger.Info("Pruned stale snapshots",
			zap.String("store", dynamicStore.Name()),
			zap.Int("pruned", pruned))
	}
}
