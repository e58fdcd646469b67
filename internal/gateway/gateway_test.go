// ABOUTME: Tests for gateway wiring and lifecycle
// ABOUTME: Verifies construction from config and graceful shutdown on cancel

package gateway

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom360/chat-gateway/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	settingsPath := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(`
[agent]
endpoint = "http://localhost:9999"
timeout_ms = 1000
`), 0o644))

	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "chat.db")},
		Agent:    config.AgentConfig{SettingsPath: settingsPath},
		Auth:     config.AuthConfig{JWTSecret: "test-secret"},
	}
}

func TestNew_WiresGraph(t *testing.T) {
	gw, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)
	require.NotNil(t, gw.Store())
	require.NoError(t, gw.store.Close())
}

func TestNew_BadSettingsPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.SettingsPath = filepath.Join(t.TempDir(), "missing.toml")

	_, err := New(cfg, slog.Default())
	assert.Error(t, err)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	gw, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}
