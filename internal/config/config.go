package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"pairchat/internal/constants"
	"pairchat/internal/models"
	"pairchat/internal/security"
)

var (
	ErrMissingIdentities = models.ConfigError{Message: "identities array is required and must contain at least two entries"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if len(c.Identities) < 2 {
		return ErrMissingIdentities
	}

	byName := make(map[string]models.IdentityConfig, len(c.Identities))
	for i, id := range c.Identities {
		if id.Name == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty identity name at index %d", i)}
		}
		if id.Credential == "" {
			return models.ConfigError{Message: fmt.Sprintf("identity %q has no credential", id.Name)}
		}
		if id.Counterpart == "" {
			return models.ConfigError{Message: fmt.Sprintf("identity %q has no counterpart", id.Name)}
		}
		if id.Counterpart == id.Name {
			return models.ConfigError{Message: fmt.Sprintf("identity %q is its own counterpart", id.Name)}
		}
		if _, dup := byName[id.Name]; dup {
			return models.ConfigError{Message: fmt.Sprintf("duplicate identity name: %s", id.Name)}
		}
		byName[id.Name] = id
	}

	// Pairings must be mutual: if A's counterpart is B, B's must be A.
	for _, id := range c.Identities {
		other, ok := byName[id.Counterpart]
		if !ok {
			return models.ConfigError{Message: fmt.Sprintf("identity %q pairs with unknown identity %q", id.Name, id.Counterpart)}
		}
		if other.Counterpart != id.Name {
			return models.ConfigError{Message: fmt.Sprintf("identities %q and %q are not paired mutually", id.Name, id.Counterpart)}
		}
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = constants.DefaultGracefulShutdownSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultInitialBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("PAIRCHAT_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("PAIRCHAT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	// SECURITY: credentials should be set via environment variables rather
	// than checked into the config file.
	for i := range c.Identities {
		envName := "PAIRCHAT_CREDENTIAL_" + credentialEnvSuffix(c.Identities[i].Name)
		if cred := os.Getenv(envName); cred != "" {
			c.Identities[i].Credential = cred
		}
	}
}

// credentialEnvSuffix turns an identity name into an environment variable
// suffix: upper-cased, with dashes folded to underscores.
func credentialEnvSuffix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
