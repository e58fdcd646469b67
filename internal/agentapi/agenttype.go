// ABOUTME: Agent type tags with storage, wire and route representations
// ABOUTME: Unrecognized tags deliberately fall back to the SDR variant

package agentapi

import "strings"

// AgentType is the internal tag for the conversational agent handling a
// conversation. Stored values use the chat_* form; the wire contract uses
// the uppercase form.
type AgentType string

// Recognized agent types.
const (
	AgentSDR     AgentType = "chat_sdr"
	AgentCloser  AgentType = "chat_closer"
	AgentSupport AgentType = "chat_support"
)

// DefaultAgentType is the named fallback for unrecognized tags. Client
// input never blocks a turn: junk routes to SDR rather than erroring.
const DefaultAgentType = AgentSDR

// NormalizeAgentType maps caller-supplied tags (frontend or storage form)
// to an internal AgentType, falling back to DefaultAgentType.
func NormalizeAgentType(raw string) AgentType {
	switch strings.ToUpper(raw) {
	case "SDR", "CHAT_SDR":
		return AgentSDR
	case "COPILOT", "CLOSER", "CHAT_CLOSER":
		return AgentCloser
	case "SUPPORT", "CHAT_SUPPORT":
		return AgentSupport
	default:
		return DefaultAgentType
	}
}

// Wire returns the agent_type value the external agent contract expects.
func (t AgentType) Wire() string {
	switch t {
	case AgentCloser:
		return "COPILOT"
	case AgentSupport:
		return "SUPPORT"
	default:
		return "SDR"
	}
}

// RoutePath returns the endpoint suffix for this agent type.
func (t AgentType) RoutePath() string {
	switch t {
	case AgentCloser:
		return "/copilot"
	case AgentSupport:
		return "/support"
	default:
		return "/sdr"
	}
}

// Storage returns the value persisted in conversation and message rows.
func (t AgentType) Storage() string {
	return string(t)
}
