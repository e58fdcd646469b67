// ABOUTME: Message persistence with transactional slot allocation
// ABOUTME: AppendMessage computes MAX(slot)+1 and inserts in one transaction, guarded by UNIQUE(conversation_id, slot)

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dom360/chat-gateway/internal/tenant"
)

// AppendMessage assigns the next slot for the conversation and inserts the
// message in the same transaction. The store opens transactions with BEGIN
// IMMEDIATE (see NewSQLiteStore) so slot computation and insert happen under
// the write lock; the UNIQUE(conversation_id, slot) constraint backstops any
// race, which surfaces as ErrSlotConflict for the caller to retry.
//
// Returns ErrNotFound if the conversation does not exist or belongs to
// another tenant; neither is retryable.
//
// On success msg.Slot and msg.CreatedAt are populated.
func (s *SQLiteStore) AppendMessage(ctx context.Context, scope tenant.Scope, msg *Message) error {
	msg.TenantID = scope.TenantID
	msg.InboxID = scope.InboxID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	// Ownership check inside the transaction: the FK only proves the
	// conversation exists, not that it is visible in this scope. Without
	// this a tenant could write into another tenant's slot sequence.
	var ownerTenant int64
	err = tx.QueryRowContext(ctx, `
		SELECT tenant_id FROM conversations WHERE id = ?
	`, msg.ConversationID).Scan(&ownerTenant)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation owner: %w", err)
	}
	if ownerTenant != scope.TenantID {
		return ErrNotFound
	}

	var nextSlot int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(slot), 0) + 1
		FROM messages
		WHERE conversation_id = ?
	`, msg.ConversationID).Scan(&nextSlot)
	if err != nil {
		return fmt.Errorf("computing next slot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (
			id, tenant_id, conversation_id, inbox_id, slot, role, content,
			agent_type, input_tokens, output_tokens, latency_ms, model, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.TenantID,
		msg.ConversationID,
		msg.InboxID,
		nextSlot,
		msg.Role,
		msg.Content,
		msg.AgentType,
		nullInt64(msg.InputTokens),
		nullInt64(msg.OutputTokens),
		nullInt64(msg.LatencyMs),
		nullString(msg.Model),
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: conversation %s slot %d", ErrSlotConflict, msg.ConversationID, nextSlot)
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: conversation %s slot %d", ErrSlotConflict, msg.ConversationID, nextSlot)
		}
		return fmt.Errorf("committing append: %w", err)
	}

	msg.Slot = nextSlot

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"slot", msg.Slot,
		"role", msg.Role,
	)
	return nil
}

// ListMessages returns all messages of a conversation in ascending slot
// order, scoped to the tenant.
func (s *SQLiteStore) ListMessages(ctx context.Context, scope tenant.Scope, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, tenant_id, conversation_id, inbox_id, slot, role, content,
		       agent_type, input_tokens, output_tokens, latency_ms, model, created_at
		FROM messages
		WHERE conversation_id = ? AND tenant_id = ?
		ORDER BY slot ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// scanMessage scans a single message row
func scanMessage(rows *sql.Rows) (*Message, error) {
	var msg Message
	var inputTokens, outputTokens, latencyMs sql.NullInt64
	var model sql.NullString
	var createdAtStr string

	err := rows.Scan(
		&msg.ID,
		&msg.TenantID,
		&msg.ConversationID,
		&msg.InboxID,
		&msg.Slot,
		&msg.Role,
		&msg.Content,
		&msg.AgentType,
		&inputTokens,
		&outputTokens,
		&latencyMs,
		&model,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning message row: %w", err)
	}

	if inputTokens.Valid {
		msg.InputTokens = &inputTokens.Int64
	}
	if outputTokens.Valid {
		msg.OutputTokens = &outputTokens.Int64
	}
	if latencyMs.Valid {
		msg.LatencyMs = &latencyMs.Int64
	}
	if model.Valid {
		msg.Model = model.String
	}

	msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	return &msg, nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt64 returns nil for nil pointers, otherwise the value
func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
