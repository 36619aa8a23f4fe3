package constants

// Default server configuration values
const (
	DefaultServerPort           = 8080
	DefaultServerReadTimeoutSec = 15
	DefaultServerIdleTimeoutSec = 60
	DefaultGracefulShutdownSec  = 30
	ServerErrorChannelSize      = 1
)

// Default store configuration values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultInitialBackoffMs      = 500

	StoreBreakerMaxFailures     = 5
	StoreBreakerResetTimeoutSec = 30
)

// WebSocket transport tunables
const (
	DefaultWSReadLimitBytes  = 16 << 20
	DefaultWSWriteTimeoutSec = 10
	DefaultWSPongTimeoutSec  = 60
	DefaultWSPingIntervalSec = 30
	DispatchQueueSize        = 256
)

// Validation limits
const (
	MaxIdentityNameLength = 64
	MaxMessageIDLength    = 64
	MaxTextLength         = 64 * 1024
	MaxAttachments        = 16
)

// At-rest encryption parameters
const (
	EncryptionSalt       = "pairchat-store-salt-v1"
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
	EncryptionIterations = 100000
	MinEncryptionSecret  = 32
)
