// ABOUTME: HTTP client for the external conversational agent service
// ABOUTME: Builds the request envelope, enforces payload invariants, and classifies failures

package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/dom360/chat-gateway/internal/settings"
	"github.com/dom360/chat-gateway/internal/tenant"
)

// Gateway errors.
var (
	// ErrInvalidPhone is returned before any network call when the sender
	// phone is not E.164 shaped.
	ErrInvalidPhone = errors.New("invalid phone format, expected E.164")

	// ErrAgentTimeout is returned when the agent did not answer within the
	// tenant-configured timeout. Distinct from AgentError so callers can
	// tell "agent is slow" from "agent rejected the call".
	ErrAgentTimeout = errors.New("agent call timed out")
)

// AgentError is a non-2xx answer from the agent service. The response body
// is logged but never carried to callers.
type AgentError struct {
	StatusCode int
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent returned status %d", e.StatusCode)
}

// phonePattern is the E.164 shape the agent contract requires: a plus sign
// followed by 7 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+\d{7,15}$`)

// NewConversationSentinel is sent as conversation.id when no conversation
// exists yet on the agent side.
const NewConversationSentinel = "new"

// HistoryEntry is one prior turn-half projected for the agent.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InvokeRequest carries everything needed for one agent call.
type InvokeRequest struct {
	AgentType      AgentType
	Scope          tenant.Scope
	TenantName     string
	Message        string
	ContactPhone   string
	ConversationID string

	// History is the reconstructed conversation so far. The wire envelope
	// does not carry it; the agent rebuilds its own context from
	// conversation.id. It is kept on the request for logging and so the
	// contract matches what the orchestrator produces.
	History []HistoryEntry
}

// Client performs calls against the external agent service.
type Client struct {
	settings   settings.Provider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an agent gateway client. The per-call timeout comes
// from the settings provider, so the underlying http.Client carries none.
func NewClient(provider settings.Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		settings:   provider,
		httpClient: &http.Client{},
		logger:     logger.With("component", "agentapi"),
	}
}

// envelope is the outbound wire contract.
type envelope struct {
	RequestID    string           `json:"request_id"`
	Tenant       tenantDescriptor `json:"tenant"`
	Routing      routing          `json:"routing"`
	Message      messageBody      `json:"message"`
	Sender       sender           `json:"sender"`
	Conversation conversationRef  `json:"conversation"`
	RAGOptions   ragOptions       `json:"rag_options"`
}

type tenantDescriptor struct {
	TenantID            int64  `json:"tenant_id"`
	ChatwootAccountID   int64  `json:"chatwoot_account_id"`
	ChatwootAccountName string `json:"chatwoot_account_name"`
	ChatwootHost        string `json:"chatwoot_host"`
}

type routing struct {
	InboxID   int64  `json:"inbox_id"`
	AgentType string `json:"agent_type"`
}

type messageBody struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type sender struct {
	PhoneE164 string `json:"phone_e164"`
}

type conversationRef struct {
	ID string `json:"id"`
}

// ragOptions are fixed by the agent contract.
type ragOptions struct {
	Enabled        bool    `json:"enabled"`
	TopK           int     `json:"top_k"`
	ReturnChunks   bool    `json:"return_chunks"`
	MatchThreshold float64 `json:"match_threshold"`
}

// Invoke sends one turn to the agent and normalizes its answer.
// Outcomes: a Result on 2xx, *AgentError on any other status,
// ErrAgentTimeout when the tenant-configured deadline expires, and
// ErrInvalidPhone before anything is sent.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (*Result, error) {
	if !phonePattern.MatchString(req.ContactPhone) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidPhone, req.ContactPhone)
	}

	endpoint, err := c.settings.AgentEndpoint(req.Scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving agent endpoint: %w", err)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = NewConversationSentinel
	}

	tenantName := req.TenantName
	if tenantName == "" {
		tenantName = fmt.Sprintf("Tenant %d", req.Scope.TenantID)
	}

	requestID := uuid.New().String()
	env := envelope{
		RequestID: requestID,
		Tenant: tenantDescriptor{
			TenantID:            req.Scope.TenantID,
			ChatwootAccountID:   req.Scope.TenantID,
			ChatwootAccountName: tenantName,
			ChatwootHost:        "app.chatwoot.com",
		},
		Routing: routing{
			InboxID:   req.Scope.InboxID,
			AgentType: req.AgentType.Wire(),
		},
		Message: messageBody{
			Content:     req.Message,
			ContentType: "text",
		},
		Sender:       sender{PhoneE164: req.ContactPhone},
		Conversation: conversationRef{ID: conversationID},
		RAGOptions: ragOptions{
			Enabled:        true,
			TopK:           5,
			ReturnChunks:   true,
			MatchThreshold: 0.7,
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding agent request: %w", err)
	}

	url := endpoint.BaseURL + req.AgentType.RoutePath()

	callCtx, cancel := context.WithTimeout(ctx, endpoint.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Info("calling agent",
		"url", url,
		"request_id", requestID,
		"tenant_id", req.Scope.TenantID,
		"agent_type", req.AgentType.Wire(),
		"timeout", endpoint.Timeout,
		"history_len", len(req.History),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn("agent call timed out", "url", url, "request_id", requestID)
			return nil, fmt.Errorf("%w after %s", ErrAgentTimeout, endpoint.Timeout)
		}
		return nil, fmt.Errorf("calling agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Body is logged for debugging but never leaked to callers.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("agent rejected call",
			"status", resp.StatusCode,
			"request_id", requestID,
			"body", string(snippet),
		)
		return nil, &AgentError{StatusCode: resp.StatusCode}
	}

	result, err := decodeResult(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding agent response: %w", err)
	}

	c.logger.Info("agent responded",
		"request_id", requestID,
		"chars", len(result.ResponseText),
		"total_tokens", result.TotalTokens,
		"latency_ms", result.LatencyMs,
	)
	return result, nil
}
