// ABOUTME: Tests for agent type normalization and routing
// ABOUTME: Covers the frontend and storage spellings plus the deliberate SDR fallback

package agentapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAgentType(t *testing.T) {
	tests := []struct {
		raw  string
		want AgentType
	}{
		{"SDR", AgentSDR},
		{"sdr", AgentSDR},
		{"chat_sdr", AgentSDR},
		{"COPILOT", AgentCloser},
		{"copilot", AgentCloser},
		{"CLOSER", AgentCloser},
		{"chat_closer", AgentCloser},
		{"SUPPORT", AgentSupport},
		{"chat_support", AgentSupport},
		// Unrecognized tags fall back to SDR instead of erroring.
		{"", AgentSDR},
		{"MARKETING", AgentSDR},
		{"garbage", AgentSDR},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAgentType(tt.raw))
		})
	}
}

func TestAgentType_RoutePath(t *testing.T) {
	assert.Equal(t, "/sdr", AgentSDR.RoutePath())
	assert.Equal(t, "/copilot", AgentCloser.RoutePath())
	assert.Equal(t, "/support", AgentSupport.RoutePath())
	// Unknown values route like the default variant.
	assert.Equal(t, "/sdr", AgentType("bogus").RoutePath())
}

func TestAgentType_Wire(t *testing.T) {
	assert.Equal(t, "SDR", AgentSDR.Wire())
	assert.Equal(t, "COPILOT", AgentCloser.Wire())
	assert.Equal(t, "SUPPORT", AgentSupport.Wire())
}
