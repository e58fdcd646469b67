// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Conversation, Message, UsageDelta and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dom360/chat-gateway/internal/tenant"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrSlotConflict is returned when a concurrent append won the race for a
// message slot. Callers retry the whole append with a freshly computed slot.
var ErrSlotConflict = errors.New("message slot conflict")

// Conversation status values. Only "open" is produced by the turn pipeline;
// closing is an administrative concern.
const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation represents one ongoing exchange with a contact within an inbox.
type Conversation struct {
	ID            string
	TenantID      int64
	InboxID       int64
	AgentType     string
	ContactPhone  string // E.164
	ContactName   string
	Status        string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is one turn-half (user or assistant) within a conversation.
// Slot numbers are unique per conversation, strictly increasing and
// gapless from 1. Token counts are nil for user messages.
type Message struct {
	ID             string
	TenantID       int64
	ConversationID string
	InboxID        int64
	Slot           int64
	Role           string
	Content        string
	AgentType      string
	InputTokens    *int64
	OutputTokens   *int64
	LatencyMs      *int64
	Model          string
	CreatedAt      time.Time
}

// ConversationSummary is a conversation with its message count, used by
// the listing endpoint.
type ConversationSummary struct {
	Conversation
	MessageCount int64
}

// UsageDelta is one turn's contribution to the daily usage ledger.
// ConversationsDelta is 1 when the turn created the conversation, else 0.
type UsageDelta struct {
	AgentType          string
	Tokens             int64
	Messages           int64
	ConversationsDelta int64
}

// DailyUsage is one row of the per-day consumption ledger.
type DailyUsage struct {
	Date               string // YYYY-MM-DD
	AgentType          string
	TotalTokens        int64
	TotalMessages      int64
	TotalConversations int64
}

// TenantTotals aggregates a tenant's all-time counters for the dashboard.
type TenantTotals struct {
	Conversations int64
	Messages      int64
	Tokens        int64
}

// Store defines the interface for conversation, message and usage
// persistence. Every method takes a tenant.Scope; implementations must
// apply it as a parameterized predicate on every query so one tenant can
// never observe another tenant's rows.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, scope tenant.Scope, conv *Conversation) error
	GetConversation(ctx context.Context, scope tenant.Scope, id string) (*Conversation, error)
	ListConversations(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*ConversationSummary, error)
	TouchConversation(ctx context.Context, scope tenant.Scope, id string, at time.Time) error

	// Messages. AppendMessage assigns the next slot atomically and fails
	// with ErrSlotConflict if a concurrent writer raced for the same slot.
	AppendMessage(ctx context.Context, scope tenant.Scope, msg *Message) error
	ListMessages(ctx context.Context, scope tenant.Scope, conversationID string) ([]*Message, error)

	// Usage ledger (daily additive counters)
	RecordUsage(ctx context.Context, scope tenant.Scope, day time.Time, delta UsageDelta) error
	ListDailyUsage(ctx context.Context, scope tenant.Scope, days int) ([]*DailyUsage, error)

	// Dashboard aggregates
	GetTenantTotals(ctx context.Context, scope tenant.Scope) (*TenantTotals, error)
	CountConversationsByAgent(ctx context.Context, scope tenant.Scope) (map[string]int64, error)

	// Ping verifies the underlying database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
