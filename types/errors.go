package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrStoreTypeUnknown    = errors.New("store type unknown")
	ErrStoreNotRunning     = errors.New("store provider not running")
	ErrStoreAlreadyRunning = errors.New("store provider already running")
	ErrStoreNameEmpty      = errors.New("store name empty")
	ErrStoreKeyEmpty       = errors.New("store key empty")
	ErrStorePutFailed      = errors.New("store put failed")
	ErrStoreDeleteFailed   = errors.New("store delete failed")
	ErrStoreRetained       = errors.New("store name is retained")
	ErrSnapshotCorrupted   = errors.New("snapshot corrupted")
)

var (
	ErrInstallFailed      = errors.New("install failed")
	ErrActivateFailed     = errors.New("activate failed")
	ErrNotInstalled       = errors.New("layer not installed")
	ErrAlreadyInstalling  = errors.New("install already in progress")
	ErrAlreadyActivating  = errors.New("activate already in progress")
	ErrPrecacheListEmpty  = errors.New("precache asset list empty")
	ErrGenerationMismatch = errors.New("generation mismatch")
)

var (
	ErrFetchFailed        = errors.New("fetch failed")
	ErrFetcherNotRunning  = errors.New("fetcher not running")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
)

var (
	ErrNotifierNotRunning = errors.New("notifier not running")
	ErrMetricsStartFailed = errors.New("metrics start failed")
	ErrSweeperNotRunning  = errors.New("sweeper not running")
	ErrSweeperIsRunning   = errors.New("sweeper already running")
	ErrScheduleInvalid    = errors.New("sweep schedule invalid")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrTLSConfigInvalid   = errors.New("tls config invalid")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
