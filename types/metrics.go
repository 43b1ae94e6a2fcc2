package types

import (
	"time"
)

type MetricsManager interface {
	LifecycleManager
	Counter(name string, labels map[string]string) Counter
	Gauge(name string, labels map[string]string) Gauge
	Histogram(name string, buckets []float64, labels map[string]string) Histogram
	Export() ([]byte, error)
}

type Counter interface {
	Inc()
	Add(value float64)
	Get() float64
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Get() float64
}

type Histogram interface {
	Observe(value float64)
	ObserveDuration(start time.Time)
}
