package models

// ConfigError represents a configuration validation failure
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// IdentityConfig declares one authenticable party and its counterpart.
// Identities are fixed at configuration time and never created at runtime.
type IdentityConfig struct {
	Name        string `json:"name"`
	Credential  string `json:"credential"`
	Counterpart string `json:"counterpart"`
}

type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
	ShutdownTimeout int `json:"shutdownTimeoutSec"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

type Config struct {
	Identities []IdentityConfig `json:"identities"`
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Retry      RetryConfig      `json:"retry"`
	Tracing    TracingConfig    `json:"tracing"`
	LogLevel   string           `json:"logLevel"`
}
