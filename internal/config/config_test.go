// ABOUTME: Tests for configuration loading, defaults, env expansion and validation
// ABOUTME: Uses temp YAML files written per test

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
database:
  path: /var/lib/chat-gateway/chat.db
agent:
  settings_path: /etc/chat-gateway/settings.toml
auth:
  jwt_secret: super-secret
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/chat-gateway/chat.db", cfg.Database.Path)
	assert.Equal(t, "/etc/chat-gateway/settings.toml", cfg.Agent.SettingsPath)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: chat.db
agent:
  settings_path: settings.toml
auth:
  jwt_secret: s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CHAT_TEST_SECRET", "from-env")

	path := writeConfig(t, `
database:
  path: chat.db
agent:
  settings_path: settings.toml
auth:
  jwt_secret: ${CHAT_TEST_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingRequired(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "no database path",
			content: `
agent:
  settings_path: settings.toml
auth:
  jwt_secret: s
`,
			wantErr: "database.path",
		},
		{
			name: "no settings path",
			content: `
database:
  path: chat.db
auth:
  jwt_secret: s
`,
			wantErr: "agent.settings_path",
		},
		{
			name: "no jwt secret",
			content: `
database:
  path: chat.db
agent:
  settings_path: settings.toml
`,
			wantErr: "auth.jwt_secret",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "{not yaml: ["))
	assert.Error(t, err)
}
