// ABOUTME: Turn orchestrator composing resolution, sequencing, the agent call and usage accounting
// ABOUTME: The user message is durable before the agent is called and is never rolled back

package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dom360/chat-gateway/internal/agentapi"
	"github.com/dom360/chat-gateway/internal/conversation"
	"github.com/dom360/chat-gateway/internal/store"
	"github.com/dom360/chat-gateway/internal/tenant"
)

// AgentInvoker defines what the orchestrator needs from the agent gateway
type AgentInvoker interface {
	Invoke(ctx context.Context, req agentapi.InvokeRequest) (*agentapi.Result, error)
}

// UsageRecorder defines what the orchestrator needs from the usage ledger
type UsageRecorder interface {
	RecordUsage(ctx context.Context, scope tenant.Scope, day time.Time, delta store.UsageDelta) error
}

// Service executes one chat turn end to end.
type Service struct {
	conversations *conversation.Service
	agent         AgentInvoker
	usage         UsageRecorder
	logger        *slog.Logger
}

// New creates a turn orchestrator
func New(conversations *conversation.Service, agent AgentInvoker, usage UsageRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conversations: conversations,
		agent:         agent,
		usage:         usage,
		logger:        logger.With("component", "turn"),
	}
}

// Request is one inbound chat turn.
type Request struct {
	Message        string
	ConversationID string // optional candidate id from the client
	AgentType      string // raw tag; unrecognized values route to SDR
	UserPhone      string // E.164
	UserName       string
	TenantName     string
}

// MessageRecord describes one persisted turn-half in the response.
type MessageRecord struct {
	ID         string            `json:"id"`
	Slot       int64             `json:"slot"`
	Content    string            `json:"content"`
	ToolCalls  []json.RawMessage `json:"tool_calls,omitempty"`
	RAGContext []json.RawMessage `json:"rag_context,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Result is the outcome of a completed turn.
type Result struct {
	ConversationID   string        `json:"conversation_id"`
	UserMessage      MessageRecord `json:"user_message"`
	AssistantMessage MessageRecord `json:"assistant_message"`
	TokensUsed       int64         `json:"tokens_used"`
}

// Process runs one turn: resolve the conversation, record the user message,
// reconstruct history, call the agent, record the reply, and roll the
// usage ledger.
//
// Record first, then act: the user message is saved before the agent is
// called, so a slow or failing agent never loses the user's input. There is
// no compensating delete - a failed turn leaves the conversation and the
// user message in place for a retried turn, which gets fresh slots.
func (s *Service) Process(ctx context.Context, scope tenant.Scope, req Request) (*Result, error) {
	agentType := agentapi.NormalizeAgentType(req.AgentType)

	// 1. Resolve or create the conversation.
	conversationID, created, err := s.conversations.Resolve(ctx, scope, conversation.ResolveRequest{
		CandidateID:  req.ConversationID,
		AgentType:    agentType,
		ContactPhone: req.UserPhone,
		ContactName:  req.UserName,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving conversation: %w", err)
	}

	// 2. Record the user message. From here on the turn is durable.
	userMsg := &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        req.Message,
		AgentType:      agentType.Storage(),
	}
	if err := s.conversations.Append(ctx, scope, userMsg); err != nil {
		return nil, fmt.Errorf("recording user message: %w", err)
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conversationID,
		"message_id", userMsg.ID,
		"slot", userMsg.Slot,
	)

	// 3. Reconstruct history (includes the message just recorded).
	history, err := s.conversations.History(ctx, scope, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reconstructing history: %w", err)
	}

	// 4. Call the agent. On failure the error is surfaced as-is so the
	// caller can distinguish timeout from rejection; the user message stays.
	result, err := s.agent.Invoke(ctx, agentapi.InvokeRequest{
		AgentType:      agentType,
		Scope:          scope,
		TenantName:     req.TenantName,
		Message:        req.Message,
		ContactPhone:   req.UserPhone,
		ConversationID: conversationID,
		History:        history,
	})
	if err != nil {
		return nil, err
	}

	// 5. Record the assistant message at the next slot.
	inputTokens := result.InputTokens
	outputTokens := result.OutputTokens
	latency := result.LatencyMs
	assistantMsg := &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        result.ResponseText,
		AgentType:      agentType.Storage(),
		InputTokens:    &inputTokens,
		OutputTokens:   &outputTokens,
		LatencyMs:      &latency,
		Model:          result.Model,
	}
	if err := s.conversations.Append(ctx, scope, assistantMsg); err != nil {
		return nil, fmt.Errorf("recording assistant message: %w", err)
	}

	// 6. Roll usage into the daily ledger. Best effort: a turn that got a
	// reply is not discarded because accounting failed.
	s.recordUsage(scope, agentType, result.TotalTokens, created)

	return &Result{
		ConversationID: conversationID,
		UserMessage: MessageRecord{
			ID:        userMsg.ID,
			Slot:      userMsg.Slot,
			Content:   userMsg.Content,
			CreatedAt: userMsg.CreatedAt,
		},
		AssistantMessage: MessageRecord{
			ID:         assistantMsg.ID,
			Slot:       assistantMsg.Slot,
			Content:    assistantMsg.Content,
			ToolCalls:  result.ToolCalls,
			RAGContext: result.RAGContext,
			CreatedAt:  assistantMsg.CreatedAt,
		},
		TokensUsed: result.TotalTokens,
	}, nil
}

// recordUsage upserts the daily aggregate with a detached timeout context
// so accounting survives request cancellation, and logs instead of failing
// the turn when the write goes wrong.
func (s *Service) recordUsage(scope tenant.Scope, agentType agentapi.AgentType, tokens int64, createdConversation bool) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conversationsDelta := int64(0)
	if createdConversation {
		conversationsDelta = 1
	}

	delta := store.UsageDelta{
		AgentType:          agentType.Storage(),
		Tokens:             tokens,
		Messages:           1, // the ledger counts completed turns
		ConversationsDelta: conversationsDelta,
	}
	if err := s.usage.RecordUsage(saveCtx, scope, time.Now().UTC(), delta); err != nil {
		s.logger.Error("failed to record usage",
			"error", err,
			"tenant_id", scope.TenantID,
			"inbox_id", scope.InboxID,
			"agent_type", delta.AgentType,
			"tokens", tokens,
		)
		return
	}

	s.logger.Debug("usage recorded",
		"tenant_id", scope.TenantID,
		"tokens", tokens,
		"new_conversation", createdConversation,
	)
}
