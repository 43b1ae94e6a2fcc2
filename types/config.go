package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Store       *StoreConfig       `yaml:"store" json:"store"`
	Upstream    *UpstreamConfig    `yaml:"upstream" json:"upstream" validate:"required"`
	Classifier  *ClassifierConfig  `yaml:"classifier" json:"classifier"`
	Precache    []string           `yaml:"precache" json:"precache"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Notifier    *NotifierConfig    `yaml:"notifier" json:"notifier"`
	Maintenance *MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
}

// Generation derives the current store-name generation from the
// configured version tag.
func (c *ServiceConfig) Generation() Generation {
	return Generation{Version: c.Version}
}

type ServerConfig struct {
	Host            string     `yaml:"host" json:"host"`
	Port            int        `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int        `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int        `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout int        `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	TLS             *TLSConfig `yaml:"tls" json:"tls"`
}

type TLSConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	CertFile string   `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string   `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	AutoCert bool     `yaml:"auto_cert" json:"auto_cert"`
	Domains  []string `yaml:"domains,omitempty" json:"domains,omitempty"`
	Email    string   `yaml:"email,omitempty" json:"email,omitempty"`
	CacheDir string   `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type StoreConfig struct {
	Type        string      `yaml:"type" json:"type" validate:"required"`
	Path        string      `yaml:"path" json:"path"`
	Compression bool        `yaml:"compression" json:"compression"`
	Config      interface{} `yaml:"config" json:"config"`
}

type UpstreamConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

type ClassifierConfig struct {
	APIPrefix  string   `yaml:"api_prefix" json:"api_prefix"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Prefix  string `yaml:"prefix" json:"prefix"`
}

type NotifierConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

type MaintenanceConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Schedule string        `yaml:"schedule" json:"schedule" validate:"required_if=Enabled true"`
	MaxAge   time.Duration `yaml:"max_age" json:"max_age" validate:"min=0"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}
