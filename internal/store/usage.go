// ABOUTME: Daily usage ledger with conflict-safe additive upsert
// ABOUTME: One row per (tenant, inbox, day, agent); concurrent turns merge commutatively

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dom360/chat-gateway/internal/tenant"
)

// RecordUsage adds one turn's deltas to the daily ledger row for
// (tenant, inbox, day, agent). The merge happens inside the database via
// ON CONFLICT DO UPDATE, so concurrent turns for the same key never lose
// updates regardless of interleaving.
func (s *SQLiteStore) RecordUsage(ctx context.Context, scope tenant.Scope, day time.Time, delta UsageDelta) error {
	query := `
		INSERT INTO usage_daily (
			tenant_id, inbox_id, date_window, agent_type,
			total_tokens, total_messages, total_conversations, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, inbox_id, date_window, agent_type)
		DO UPDATE SET
			total_tokens        = total_tokens + excluded.total_tokens,
			total_messages      = total_messages + excluded.total_messages,
			total_conversations = total_conversations + excluded.total_conversations,
			updated_at          = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		scope.TenantID,
		scope.InboxID,
		day.UTC().Format(time.DateOnly),
		delta.AgentType,
		delta.Tokens,
		delta.Messages,
		delta.ConversationsDelta,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting usage: %w", err)
	}

	s.logger.Debug("recorded usage",
		"tenant_id", scope.TenantID,
		"inbox_id", scope.InboxID,
		"agent_type", delta.AgentType,
		"tokens", delta.Tokens,
	)
	return nil
}

// ListDailyUsage returns the tenant's consumption rows for the last `days`
// calendar days, newest first, summed across inboxes per (day, agent).
func (s *SQLiteStore) ListDailyUsage(ctx context.Context, scope tenant.Scope, days int) ([]*DailyUsage, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT date_window, agent_type,
		       SUM(total_tokens), SUM(total_messages), SUM(total_conversations)
		FROM usage_daily
		WHERE tenant_id = ?
		GROUP BY date_window, agent_type
		ORDER BY date_window DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, scope.TenantID, days)
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	defer rows.Close()

	var usage []*DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.AgentType, &u.TotalTokens, &u.TotalMessages, &u.TotalConversations); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		usage = append(usage, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return usage, nil
}

// GetTenantTotals returns all-time conversation, message and token totals
// for the dashboard.
func (s *SQLiteStore) GetTenantTotals(ctx context.Context, scope tenant.Scope) (*TenantTotals, error) {
	query := `
		SELECT
			COUNT(DISTINCT c.id),
			COUNT(m.id),
			COALESCE(SUM(COALESCE(m.input_tokens, 0) + COALESCE(m.output_tokens, 0)), 0)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.tenant_id = ?
	`

	var totals TenantTotals
	err := s.db.QueryRowContext(ctx, query, scope.TenantID).Scan(
		&totals.Conversations,
		&totals.Messages,
		&totals.Tokens,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tenant totals: %w", err)
	}

	return &totals, nil
}

// CountConversationsByAgent breaks down the tenant's conversations by
// agent type for the dashboard.
func (s *SQLiteStore) CountConversationsByAgent(ctx context.Context, scope tenant.Scope) (map[string]int64, error) {
	query := `
		SELECT agent_type, COUNT(*)
		FROM conversations
		WHERE tenant_id = ?
		GROUP BY agent_type
	`

	rows, err := s.db.QueryContext(ctx, query, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations by agent: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var agentType string
		var count int64
		if err := rows.Scan(&agentType, &count); err != nil {
			return nil, fmt.Errorf("scanning agent count row: %w", err)
		}
		counts[agentType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent count rows: %w", err)
	}

	return counts, nil
}
