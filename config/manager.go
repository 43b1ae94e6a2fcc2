package config

import (
	"sync/atomic"

	"github.com/saiset-co/sai-offline-cache/types"
)

type ConfigurationManager struct {
	config     atomic.Pointer[types.ServiceConfig]
	configPath string
	loader     *Loader
}

func NewConfigurationManager(configPath string) (*ConfigurationManager, error) {
	cm := &ConfigurationManager{
		configPath: configPath,
		loader:     NewLoader(),
	}

	if err := cm.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

func (cm *ConfigurationManager) Load() error {
	config, err := cm.loader.LoadFromFile(cm.configPath)
	if err != nil {
		return err
	}

	cm.config.Store(config)
	return nil
}

func (cm *ConfigurationManager) GetConfig() *types.ServiceConfig {
	return cm.config.Load()
}
