// ABOUTME: Conversation resolution, ordered message appends, and history reconstruction
// ABOUTME: Client-provided junk conversation ids never block a turn - they fall back to a new conversation

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dom360/chat-gateway/internal/agentapi"
	"github.com/dom360/chat-gateway/internal/store"
	"github.com/dom360/chat-gateway/internal/tenant"
)

// appendRetries bounds how often an append is retried after losing a slot
// race. Conflicts are rare (they need two writers on one conversation), so
// a small bound is plenty.
const appendRetries = 3

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, scope tenant.Scope, conv *store.Conversation) error
	AppendMessage(ctx context.Context, scope tenant.Scope, msg *store.Message) error
	ListMessages(ctx context.Context, scope tenant.Scope, conversationID string) ([]*store.Message, error)
	TouchConversation(ctx context.Context, scope tenant.Scope, id string, at time.Time) error
}

// Service resolves conversations and owns message ordering.
type Service struct {
	store  ConversationStore
	logger *slog.Logger
}

// New creates a conversation service
func New(st ConversationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "conversation"),
	}
}

// ResolveRequest carries the caller-supplied conversation details for one turn.
type ResolveRequest struct {
	// CandidateID is the conversation id the client believes it is in.
	// May be empty or garbage; both mean "start a new conversation".
	CandidateID  string
	AgentType    agentapi.AgentType
	ContactPhone string
	ContactName  string
}

// Resolve returns an existing conversation identity or creates a new open
// conversation. A syntactically valid candidate UUID is trusted without an
// existence check - referential integrity catches dangling ids at write
// time. A malformed candidate is logged and ignored, never an error.
func (s *Service) Resolve(ctx context.Context, scope tenant.Scope, req ResolveRequest) (string, bool, error) {
	if req.CandidateID != "" {
		if _, err := uuid.Parse(req.CandidateID); err == nil {
			return req.CandidateID, false, nil
		}
		s.logger.Warn("malformed conversation id, creating new conversation",
			"candidate_id", req.CandidateID,
			"tenant_id", scope.TenantID,
		)
	}

	contactName := req.ContactName
	if contactName == "" {
		contactName = "Usuário"
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:            uuid.New().String(),
		AgentType:     req.AgentType.Storage(),
		ContactPhone:  req.ContactPhone,
		ContactName:   contactName,
		Status:        store.ConversationOpen,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.store.CreateConversation(ctx, scope, conv); err != nil {
		return "", false, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"tenant_id", scope.TenantID,
		"inbox_id", scope.InboxID,
		"agent_type", conv.AgentType,
	)
	return conv.ID, true, nil
}

// Append writes a message at the conversation's next slot. Slot conflicts
// from concurrent writers are retried here with a freshly computed slot;
// callers never observe ErrSlotConflict. The conversation's last activity
// timestamp is bumped on success.
func (s *Service) Append(ctx context.Context, scope tenant.Scope, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	var err error
	for attempt := 1; attempt <= appendRetries; attempt++ {
		err = s.store.AppendMessage(ctx, scope, msg)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrSlotConflict) {
			return fmt.Errorf("appending message: %w", err)
		}
		s.logger.Debug("slot conflict, retrying append",
			"conversation_id", msg.ConversationID,
			"attempt", attempt,
		)
	}
	if err != nil {
		return fmt.Errorf("appending message after %d attempts: %w", appendRetries, err)
	}

	if err := s.store.TouchConversation(ctx, scope, msg.ConversationID, msg.CreatedAt); err != nil {
		// Activity bump is cosmetic ordering metadata; the message is durable.
		s.logger.Warn("failed to bump conversation activity",
			"conversation_id", msg.ConversationID,
			"error", err,
		)
	}

	return nil
}

// History returns the conversation's prior turns in ascending slot order,
// projected into the role/content pairs the agent consumes. Messages with
// no content for their role are omitted.
func (s *Service) History(ctx context.Context, scope tenant.Scope, conversationID string) ([]agentapi.HistoryEntry, error) {
	msgs, err := s.store.ListMessages(ctx, scope, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	history := make([]agentapi.HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content == "" {
			continue
		}
		history = append(history, agentapi.HistoryEntry{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return history, nil
}
