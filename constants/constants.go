package constants

import (
	"errors"
	"time"
)

const (
	DefaultThreadCount    = 4
	DefaultUserAgent      = "resttap/1.0"
	DefaultTokenParam     = "page"
	DefaultSortParam      = "sort"
	DefaultOrderByParam   = "order_by"
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 30 * time.Second
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMultiplier     = 2.0
	DefaultMaxPages       = 10000
	TokenExpiryLeeway     = 30 * time.Second
	EnvPrefix             = "RESTTAP"
	LocalFileExt          = "jsonl"
)

// viper keys
const (
	ConfigFolder   = "CONFIG_FOLDER"
	StatePath      = "STATE_PATH"
	StreamsPath    = "STREAMS_PATH"
	LogLevel       = "LOG_LEVEL"
	TraceEnabled   = "TRACE_ENABLED"
	NoSave         = "NO_SAVE"
	MaxConnections = "MAX_CONNECTIONS"
	StateDSN       = "STATE_DSN"
	StateTable     = "STATE_TABLE"
	EncryptionKey  = "ENCRYPTION_KEY"
)

type DriverType string

const (
	Generic DriverType = "generic"
	GitLab  DriverType = "gitlab"
)

// ErrNonRetryable is matched by errors.Is on failures that re-running a
// partition cannot fix.
var ErrNonRetryable = errors.New("non-retryable error")
