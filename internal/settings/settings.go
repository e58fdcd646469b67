// ABOUTME: Master settings provider for per-tenant agent endpoint configuration
// ABOUTME: Loads TOML with a default endpoint and optional per-tenant overrides

package settings

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNoEndpoint is returned when neither a tenant override nor a default
// endpoint is configured.
var ErrNoEndpoint = errors.New("no agent endpoint configured")

// defaultTimeout applies when a tenant entry omits timeout_ms.
const defaultTimeout = 30 * time.Second

// Endpoint is a resolved agent destination for one tenant.
type Endpoint struct {
	BaseURL string
	Timeout time.Duration
}

// Provider resolves the agent endpoint and call timeout for a tenant.
// This mirrors the master settings table of the hosted deployment: one
// default row plus optional per-tenant overrides.
type Provider interface {
	AgentEndpoint(tenantID int64) (Endpoint, error)
}

// File is the TOML shape of the master settings file.
type File struct {
	Agent   AgentSettings            `toml:"agent"`
	Tenants map[string]AgentSettings `toml:"tenants"`
}

// AgentSettings holds one endpoint entry.
type AgentSettings struct {
	Endpoint  string `toml:"endpoint"`
	TimeoutMs int64  `toml:"timeout_ms"`
}

// FileProvider implements Provider from a TOML settings file.
type FileProvider struct {
	file File
}

// Load reads master settings from the given path, expanding ${VAR}
// environment references.
func Load(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var file File
	if _, err := toml.Decode(expanded, &file); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	p := &FileProvider{file: file}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("validating settings: %w", err)
	}
	return p, nil
}

// Static builds a provider from an in-memory settings file. Used by tests
// and the fake-agent tooling.
func Static(file File) *FileProvider {
	return &FileProvider{file: file}
}

func (p *FileProvider) validate() error {
	if p.file.Agent.Endpoint == "" && len(p.file.Tenants) == 0 {
		return ErrNoEndpoint
	}
	for key, t := range p.file.Tenants {
		if t.Endpoint == "" {
			return fmt.Errorf("tenants.%s: endpoint is required", key)
		}
	}
	return nil
}

// AgentEndpoint returns the tenant's endpoint, falling back to the default
// entry when the tenant has no override.
func (p *FileProvider) AgentEndpoint(tenantID int64) (Endpoint, error) {
	entry := p.file.Agent
	if t, ok := p.file.Tenants[fmt.Sprintf("%d", tenantID)]; ok {
		entry = t
	}

	if entry.Endpoint == "" {
		return Endpoint{}, fmt.Errorf("%w: tenant %d", ErrNoEndpoint, tenantID)
	}

	timeout := defaultTimeout
	if entry.TimeoutMs > 0 {
		timeout = time.Duration(entry.TimeoutMs) * time.Millisecond
	}

	return Endpoint{
		BaseURL: strings.TrimRight(entry.Endpoint, "/"),
		Timeout: timeout,
	}, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

var _ Provider = (*FileProvider)(nil)
