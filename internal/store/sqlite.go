// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message/usage persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dom360/chat-gateway/internal/tenant"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so the slot
	// computation in AppendMessage serializes against concurrent appends.
	// foreign_keys and busy_timeout are per-connection, so they go in the
	// DSN to cover every pooled connection.
	dsn := path + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id         INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS inboxes (
			id         INTEGER PRIMARY KEY,
			tenant_id  INTEGER NOT NULL REFERENCES tenants(id),
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_inboxes_tenant ON inboxes(tenant_id);

		CREATE TABLE IF NOT EXISTS conversations (
			id                 TEXT PRIMARY KEY,
			tenant_id          INTEGER NOT NULL REFERENCES tenants(id),
			inbox_id           INTEGER NOT NULL REFERENCES inboxes(id),
			agent_type         TEXT NOT NULL,
			contact_phone_e164 TEXT NOT NULL,
			contact_name       TEXT NOT NULL,
			status             TEXT NOT NULL DEFAULT 'open',
			created_at         TEXT NOT NULL,
			last_message_at    TEXT NOT NULL,

			CHECK (status IN ('open', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_tenant
			ON conversations(tenant_id, inbox_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_activity
			ON conversations(tenant_id, last_message_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			tenant_id       INTEGER NOT NULL,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			inbox_id        INTEGER NOT NULL,
			slot            INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			agent_type      TEXT NOT NULL,
			input_tokens    INTEGER,
			output_tokens   INTEGER,
			latency_ms      INTEGER,
			model           TEXT,
			created_at      TEXT NOT NULL,

			UNIQUE (conversation_id, slot),
			CHECK (role IN ('user', 'assistant')),
			CHECK (slot >= 1)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, slot);
		CREATE INDEX IF NOT EXISTS idx_messages_tenant
			ON messages(tenant_id);

		CREATE TABLE IF NOT EXISTS usage_daily (
			tenant_id           INTEGER NOT NULL,
			inbox_id            INTEGER NOT NULL,
			date_window         TEXT NOT NULL,
			agent_type          TEXT NOT NULL,
			total_tokens        INTEGER NOT NULL DEFAULT 0,
			total_messages      INTEGER NOT NULL DEFAULT 0,
			total_conversations INTEGER NOT NULL DEFAULT 0,
			updated_at          TEXT NOT NULL,

			PRIMARY KEY (tenant_id, inbox_id, date_window, agent_type)
		);

		CREATE INDEX IF NOT EXISTS idx_usage_daily_window
			ON usage_daily(tenant_id, date_window DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint
// violation. Only UNIQUE failures qualify: FOREIGN KEY and CHECK failures
// are not retryable and must surface as plain storage errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateConversation inserts a new conversation scoped to the given tenant.
// The scope's tenant and inbox override whatever the struct carries so a
// conversation can never be written outside its isolation boundary.
func (s *SQLiteStore) CreateConversation(ctx context.Context, scope tenant.Scope, conv *Conversation) error {
	conv.TenantID = scope.TenantID
	conv.InboxID = scope.InboxID
	if conv.Status == "" {
		conv.Status = ConversationOpen
	}

	query := `
		INSERT INTO conversations (
			id, tenant_id, inbox_id, agent_type, contact_phone_e164,
			contact_name, status, created_at, last_message_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.TenantID,
		conv.InboxID,
		conv.AgentType,
		conv.ContactPhone,
		conv.ContactName,
		conv.Status,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.LastMessageAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation",
		"id", conv.ID,
		"tenant_id", conv.TenantID,
		"inbox_id", conv.InboxID,
		"agent_type", conv.AgentType,
	)
	return nil
}

// GetConversation retrieves a conversation by ID within the tenant scope.
// Returns ErrNotFound if it doesn't exist or belongs to another tenant.
func (s *SQLiteStore) GetConversation(ctx context.Context, scope tenant.Scope, id string) (*Conversation, error) {
	query := `
		SELECT id, tenant_id, inbox_id, agent_type, contact_phone_e164,
		       contact_name, status, created_at, last_message_at
		FROM conversations
		WHERE id = ? AND tenant_id = ?
	`

	var conv Conversation
	var createdAtStr, lastMessageAtStr string

	err := s.db.QueryRowContext(ctx, query, id, scope.TenantID).Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.InboxID,
		&conv.AgentType,
		&conv.ContactPhone,
		&conv.ContactName,
		&conv.Status,
		&createdAtStr,
		&lastMessageAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.LastMessageAt, err = time.Parse(time.RFC3339, lastMessageAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}

	return &conv, nil
}

// ListConversations returns the tenant's conversations with message counts,
// most recently active first.
func (s *SQLiteStore) ListConversations(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT c.id, c.tenant_id, c.inbox_id, c.agent_type, c.contact_phone_e164,
		       c.contact_name, c.status, c.created_at, c.last_message_at,
		       COUNT(m.id) AS message_count
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.tenant_id = ?
		GROUP BY c.id
		ORDER BY c.last_message_at DESC, c.created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, scope.TenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var sum ConversationSummary
		var createdAtStr, lastMessageAtStr string

		if err := rows.Scan(
			&sum.ID,
			&sum.TenantID,
			&sum.InboxID,
			&sum.AgentType,
			&sum.ContactPhone,
			&sum.ContactName,
			&sum.Status,
			&createdAtStr,
			&lastMessageAtStr,
			&sum.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		sum.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sum.LastMessageAt, err = time.Parse(time.RFC3339, lastMessageAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}

		summaries = append(summaries, &sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return summaries, nil
}

// TouchConversation bumps last_message_at after an append.
// Returns ErrNotFound if the conversation is not visible in this scope.
func (s *SQLiteStore) TouchConversation(ctx context.Context, scope tenant.Scope, id string, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_at = ?
		WHERE id = ? AND tenant_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339), id, scope.TenantID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpsertTenant registers (or renames) a tenant row. Used by the seed
// command and tests; the turn pipeline never creates tenants.
func (s *SQLiteStore) UpsertTenant(ctx context.Context, id int64, name string) error {
	query := `
		INSERT INTO tenants (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, id, name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting tenant: %w", err)
	}
	return nil
}

// UpsertInbox registers (or renames) an inbox row belonging to a tenant.
func (s *SQLiteStore) UpsertInbox(ctx context.Context, tenantID, id int64, name string) error {
	query := `
		INSERT INTO inboxes (id, tenant_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, id, tenantID, name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting inbox: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
