package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-offline-cache/types"
	"github.com/saiset-co/sai-offline-cache/utils"
)

type ZapLoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
	File   string `yaml:"file" json:"file"`
}

func NewDefaultLogger(config *types.LoggerConfig) (types.Logger, error) {
	lConfig := &ZapLoggerConfig{
		Format: "console",
		Output: "stdout",
		Level:  config.Level,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, lConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal logger config")
		}
	}

	logger, err := buildZapLogger(lConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return NewZapWrapper(logger), nil
}

func buildZapLogger(config *ZapLoggerConfig) (*zap.Logger, error) {
	level := parseLogLevel(config.Level)

	var zapConfig zap.Config
	if config.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.DisableStacktrace = true
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch config.Output {
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	case "file":
		if config.File == "" {
			return nil, types.ErrLogFileIsEmpty
		}
		if err := ensureLogDir(config.File); err != nil {
			return nil, err
		}
		zapConfig.OutputPaths = []string{config.File}
		zapConfig.ErrorOutputPaths = []string{config.File}
	default:
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	return zapConfig.Build(zap.AddCaller())
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func ensureLogDir(logFile string) error {
	lastSlash := strings.LastIndex(logFile, "/")
	if lastSlash == -1 {
		return nil
	}

	err := os.MkdirAll(logFile[:lastSlash], 0755)
	return types.WrapError(err, "access denied to log directory")
}

type ZapWrapper struct {
	Logger *zap.Logger
}

func NewZapWrapper(logger *zap.Logger) types.Logger {
	return &ZapWrapper{Logger: logger}
}

func (z *ZapWrapper) Error(msg string, fields ...zap.Field) {
	z.Logger.WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

func (z *ZapWrapper) Warn(msg string, fields ...zap.Field) {
	z.Logger.WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func (z *ZapWrapper) Info(msg string, fields ...zap.Field) {
	z.Logger.WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func (z *ZapWrapper) Debug(msg string, fields ...zap.Field) {
	z.Logger.WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func (z *ZapWrapper) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	z.Logger.WithOptions(zap.AddCallerSkip(1)).Log(lvl, msg, fields...)
}

func (z *ZapWrapper) ErrorWithErrStack(msg string, err error, fields ...zap.Field) {
	if err == nil {
		z.Error(msg, fields...)
		return
	}

	allFields := make([]zap.Field, 0, len(fields)+2)
	allFields = append(allFields, zap.String("error", errors.Cause(err).Error()))
	allFields = append(allFields, fields...)

	if stack := extractStackFromError(err); stack != "" {
		allFields = append(allFields, zap.String("stack", stack))
	}

	z.Logger.WithOptions(zap.AddCallerSkip(1)).Error(msg, allFields...)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func extractStackFromError(err error) string {
	if err == nil {
		return ""
	}

	var stack string
	if st, ok := err.(stackTracer); ok {
		stack = fmt.Sprintf("%+v", st.StackTrace())
	}

	if st, ok := errors.Cause(err).(stackTracer); ok {
		stack = fmt.Sprintf("%+v", st.StackTrace())
	}

	return stack
}
