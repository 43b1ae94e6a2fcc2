package logger

import (
	"github.com/saiset-co/sai-offline-cache/types"
)

var customLoggerCreators = make(map[string]types.LoggerCreator)

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	customLoggerCreators[loggerName] = creator
}

func NewLogger(config *types.LoggerConfig) (types.Logger, error) {
	if config == nil {
		config = &types.LoggerConfig{Level: "info"}
	}

	loggerName := config.Type
	if loggerName == "" || loggerName == "zap" {
		return NewDefaultLogger(config)
	}

	if creator, exists := customLoggerCreators[loggerName]; exists {
		return creator(config)
	}

	return nil, types.Errorf(types.ErrLoggerTypeUnknown, "type: %s", loggerName)
}
