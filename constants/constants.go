package constants

import (
	"errors"
	"time"
)

const (
	ConfigFolder  = "CONFIG_FOLDER"
	StatePath     = "STATE_PATH"
	StreamsPath   = "STREAMS_PATH"
	EncryptionKey = "ENCRYPTION_KEY"
	ErrorFilePath = "ERROR_FILE_PATH"

	DefaultRetryCount    = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultRequestRetry  = 10
	DefaultRequestDelay  = time.Second
	DefaultPollInterval  = 2 * time.Second
	MaxPollInterval      = 60 * time.Second
	DefaultHTTPTimeout   = 5 * time.Minute
	TokenRefreshInterval = 15 * time.Minute

	// default quota thresholds, percent
	DefaultQuotaPercentTotal  = 80
	DefaultQuotaPercentPerRun = 25
)

var (
	// ErrQuotaExceeded terminates the whole run; it is never retried.
	ErrQuotaExceeded = errors.New("API quota exceeded")

	// ErrStaleJob marks a persisted bulk job that no longer exists remotely.
	// It is recovered locally by falling back to a fresh extraction.
	ErrStaleJob = errors.New("stored bulk job no longer exists")

	// ErrNonRetryable wraps errors that must not be retried at the call site.
	ErrNonRetryable = errors.New("non retryable")
)
