// ABOUTME: JSON projections of store records for the read endpoints
// ABOUTME: Keeps wire field names stable and independent of the store types

package httpapi

import (
	"time"

	"github.com/dom360/chat-gateway/internal/store"
)

type conversationView struct {
	ID            string `json:"id"`
	AgentType     string `json:"agent_type"`
	ContactPhone  string `json:"contact_phone"`
	ContactName   string `json:"contact_name"`
	Status        string `json:"status"`
	MessageCount  int64  `json:"message_count"`
	CreatedAt     string `json:"created_at"`
	LastMessageAt string `json:"last_message_at"`
}

func conversationViews(summaries []*store.ConversationSummary) []conversationView {
	views := make([]conversationView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, conversationView{
			ID:            s.ID,
			AgentType:     s.AgentType,
			ContactPhone:  s.ContactPhone,
			ContactName:   s.ContactName,
			Status:        s.Status,
			MessageCount:  s.MessageCount,
			CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
			LastMessageAt: s.LastMessageAt.UTC().Format(time.RFC3339),
		})
	}
	return views
}

type messageView struct {
	ID           string `json:"id"`
	Slot         int64  `json:"slot"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	AgentType    string `json:"agent_type,omitempty"`
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
	LatencyMs    *int64 `json:"latency_ms,omitempty"`
	Model        string `json:"model,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type dailyUsageView struct {
	Date               string `json:"date"`
	AgentType          string `json:"agent_type"`
	TotalTokens        int64  `json:"total_tokens"`
	TotalMessages      int64  `json:"total_messages"`
	TotalConversations int64  `json:"total_conversations"`
}

func dailyUsageViews(rows []*store.DailyUsage) []dailyUsageView {
	views := make([]dailyUsageView, 0, len(rows))
	for _, row := range rows {
		views = append(views, dailyUsageView{
			Date:               row.Date,
			AgentType:          row.AgentType,
			TotalTokens:        row.TotalTokens,
			TotalMessages:      row.TotalMessages,
			TotalConversations: row.TotalConversations,
		})
	}
	return views
}

func messageViews(messages []*store.Message) []messageView {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:           m.ID,
			Slot:         m.Slot,
			Role:         m.Role,
			Content:      m.Content,
			AgentType:    m.AgentType,
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
			LatencyMs:    m.LatencyMs,
			Model:        m.Model,
			CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return views
}
