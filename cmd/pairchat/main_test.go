package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/models"
)

func writeTestConfig(t *testing.T, mutate func(*models.Config)) string {
	t.Helper()
	dir := t.TempDir()

	cfg := models.Config{
		Identities: []models.IdentityConfig{
			{Name: "alice", Credential: "alice-pass", Counterpart: "bob"},
			{Name: "bob", Credential: "bob-pass", Counterpart: "alice"},
		},
		Server:   models.ServerConfig{Port: 19317},
		Database: models.DatabaseConfig{Path: filepath.Join(dir, "pairchat.db")},
		LogLevel: "error",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func withConfigPath(t *testing.T, path string) {
	t.Helper()
	previous := *configPath
	*configPath = path
	t.Cleanup(func() { *configPath = previous })
}

func TestRunStartsAndShutsDown(t *testing.T) {
	withConfigPath(t, writeTestConfig(t, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	// Give the server a moment to come up, then trigger graceful shutdown.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after shutdown signal")
	}
}

func TestRunWithMissingConfig(t *testing.T) {
	withConfigPath(t, filepath.Join(t.TempDir(), "missing.json"))

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunWithInvalidConfig(t *testing.T) {
	withConfigPath(t, writeTestConfig(t, func(cfg *models.Config) {
		cfg.Identities[0].Counterpart = "alice"
	}))

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestConfigureLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		expected   logrus.Level
	}{
		{name: "empty defaults to info", configured: "", expected: logrus.InfoLevel},
		{name: "error level respected", configured: "error", expected: logrus.ErrorLevel},
		{name: "invalid defaults to info", configured: "shout", expected: logrus.InfoLevel},
		{name: "debug capped at info without verbose", configured: "debug", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			configureLogLevel(logger, tt.configured)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}
