package health

import (
	"context"
	"sync"
	"time"

	"github.com/saiset-co/sai-offline-cache/types"
)

// Manager is a checker registry; the gateway serves its report on the
// health endpoint.
type Manager struct {
	mu        sync.RWMutex
	checkers  map[string]types.HealthChecker
	startedAt time.Time
}

func NewManager() *Manager {
	return &Manager{
		checkers:  make(map[string]types.HealthChecker),
		startedAt: time.Now(),
	}
}

func (m *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

func (m *Manager) Check(ctx context.Context) types.HealthReport {
	m.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(m.checkers))
	for name, checker := range m.checkers {
		checkers[name] = checker
	}
	m.mu.RUnlock()

	report := types.HealthReport{
		Status:    types.StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(m.startedAt),
		Checks:    make(map[string]types.HealthCheck, len(checkers)),
	}

	for name, checker := range checkers {
		start := time.Now()
		check := checker(ctx)
		check.Name = name
		check.LastCheck = time.Now()
		check.Duration = time.Since(start)

		if check.Status == "" {
			check.Status = types.StatusUnknown
		}
		if check.Status != types.StatusHealthy {
			report.Status = types.StatusUnhealthy
		}

		report.Checks[name] = check
	}

	return report
}
