package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-offline-cache/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.Load(data)
}

func (l *Loader) Load(data []byte) (*types.ServiceConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
			TLS: &types.TLSConfig{
				Enabled: false,
			},
		},
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Store: &types.StoreConfig{
			Type:        "clover",
			Path:        "./data/stores",
			Compression: true,
		},
		Upstream: &types.UpstreamConfig{
			Timeout: 15 * time.Second,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled: false,
			},
		},
		Classifier: &types.ClassifierConfig{
			APIPrefix: "/api/",
		},
		Precache: []string{"/", "/index.html"},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
		Notifier: &types.NotifierConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8081,
			Path:    "/ws",
		},
		Maintenance: &types.MaintenanceConfig{
			Enabled: false,
			MaxAge:  24 * time.Hour,
		},
		Health: &types.HealthConfig{
			Enabled: true,
			Path:    "/healthz",
		},
	}
}
