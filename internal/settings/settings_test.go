// ABOUTME: Tests for master settings loading and per-tenant endpoint resolution
// ABOUTME: Covers defaults, tenant overrides, env expansion and validation failures

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultEndpoint(t *testing.T) {
	path := writeSettings(t, `
[agent]
endpoint = "https://agents.example.com/"
timeout_ms = 15000
`)

	p, err := Load(path)
	require.NoError(t, err)

	ep, err := p.AgentEndpoint(1)
	require.NoError(t, err)
	assert.Equal(t, "https://agents.example.com", ep.BaseURL)
	assert.Equal(t, 15*time.Second, ep.Timeout)
}

func TestLoad_TenantOverride(t *testing.T) {
	path := writeSettings(t, `
[agent]
endpoint = "https://agents.example.com"
timeout_ms = 15000

[tenants.7]
endpoint = "https://tenant7.example.com"
timeout_ms = 5000
`)

	p, err := Load(path)
	require.NoError(t, err)

	ep, err := p.AgentEndpoint(7)
	require.NoError(t, err)
	assert.Equal(t, "https://tenant7.example.com", ep.BaseURL)
	assert.Equal(t, 5*time.Second, ep.Timeout)

	// Other tenants fall back to the default entry.
	ep, err = p.AgentEndpoint(8)
	require.NoError(t, err)
	assert.Equal(t, "https://agents.example.com", ep.BaseURL)
}

func TestLoad_DefaultTimeout(t *testing.T) {
	path := writeSettings(t, `
[agent]
endpoint = "https://agents.example.com"
`)

	p, err := Load(path)
	require.NoError(t, err)

	ep, err := p.AgentEndpoint(1)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ep.Timeout)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("AGENT_ENDPOINT", "https://env.example.com")
	path := writeSettings(t, `
[agent]
endpoint = "${AGENT_ENDPOINT}"
`)

	p, err := Load(path)
	require.NoError(t, err)

	ep, err := p.AgentEndpoint(1)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", ep.BaseURL)
}

func TestLoad_MissingEndpoint(t *testing.T) {
	path := writeSettings(t, `
[agent]
timeout_ms = 1000
`)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestStatic_NoDefaultForUnknownTenant(t *testing.T) {
	p := Static(File{
		Tenants: map[string]AgentSettings{
			"3": {Endpoint: "https://t3.example.com"},
		},
	})

	_, err := p.AgentEndpoint(4)
	assert.ErrorIs(t, err, ErrNoEndpoint)

	ep, err := p.AgentEndpoint(3)
	require.NoError(t, err)
	assert.Equal(t, "https://t3.example.com", ep.BaseURL)
}
