// ABOUTME: End-to-end tests for the turn orchestrator against a real store
// ABOUTME: Covers happy path, agent failures leaving the user message durable, and best-effort usage

package turn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom360/chat-gateway/internal/agentapi"
	"github.com/dom360/chat-gateway/internal/conversation"
	"github.com/dom360/chat-gateway/internal/settings"
	"github.com/dom360/chat-gateway/internal/store"
	"github.com/dom360/chat-gateway/internal/tenant"
)

var testScope = tenant.Scope{TenantID: 1, InboxID: 27}

// setupTurn wires a turn service against a temp SQLite store and an
// httptest agent. Callers own the handler; the agent endpoint timeout is
// generous unless a test overrides it through its own setup.
func setupTurn(t *testing.T, handler http.Handler) (*Service, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "turn_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.UpsertTenant(ctx, 1, "Tenant One"))
	require.NoError(t, st.UpsertInbox(ctx, 1, 27, "WhatsApp"))

	agentSrv := httptest.NewServer(handler)
	t.Cleanup(agentSrv.Close)

	provider := settings.Static(settings.File{
		Agent: settings.AgentSettings{Endpoint: agentSrv.URL, TimeoutMs: 2000},
	})

	convs := conversation.New(st, nil)
	client := agentapi.NewClient(provider, nil)
	return New(convs, client, st, nil), st
}

func agentReply(text string, input, output int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"agent_output": {"text": "` + text + `"},
			"usage": {"input_tokens": ` + itoa(input) + `, "output_tokens": ` + itoa(output) + `, "total_tokens": ` + itoa(input+output) + `, "model": "gpt-4o"},
			"latency_ms": 120
		}`))
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestService_Process_FirstTurn(t *testing.T) {
	var gotPath string
	svc, st := setupTurn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		agentReply("Hi!", 5, 3)(w, r)
	}))

	ctx := context.Background()
	result, err := svc.Process(ctx, testScope, Request{
		Message:   "Hello",
		AgentType: "SDR",
		UserPhone: "+5511999999999",
		UserName:  "Maria",
	})
	require.NoError(t, err)

	assert.Equal(t, "/sdr", gotPath)
	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, int64(1), result.UserMessage.Slot)
	assert.Equal(t, "Hello", result.UserMessage.Content)
	assert.Equal(t, int64(2), result.AssistantMessage.Slot)
	assert.Equal(t, "Hi!", result.AssistantMessage.Content)
	assert.Equal(t, int64(8), result.TokensUsed)

	// Both halves are durable and ordered.
	msgs, err := st.ListMessages(ctx, testScope, result.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	require.NotNil(t, msgs[1].InputTokens)
	assert.Equal(t, int64(5), *msgs[1].InputTokens)
	assert.Equal(t, "gpt-4o", msgs[1].Model)

	// The daily ledger rolled up one new conversation and one full turn.
	usage, err := st.ListDailyUsage(ctx, testScope, 7)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, "chat_sdr", usage[0].AgentType)
	assert.Equal(t, int64(8), usage[0].TotalTokens)
	assert.Equal(t, int64(1), usage[0].TotalMessages)
	assert.Equal(t, int64(1), usage[0].TotalConversations)
}

func TestService_Process_SecondTurnContinuesConversation(t *testing.T) {
	svc, st := setupTurn(t, agentReply("Sure.", 10, 4))

	ctx := context.Background()
	first, err := svc.Process(ctx, testScope, Request{
		Message:   "Hello",
		AgentType: "SDR",
		UserPhone: "+5511999999999",
	})
	require.NoError(t, err)

	second, err := svc.Process(ctx, testScope, Request{
		Message:        "Tell me more",
		ConversationID: first.ConversationID,
		AgentType:      "SDR",
		UserPhone:      "+5511999999999",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, int64(3), second.UserMessage.Slot)
	assert.Equal(t, int64(4), second.AssistantMessage.Slot)

	// The second turn reuses the conversation, so the conversation counter
	// only moved on the first. Each turn adds one to the message counter.
	usage, err := st.ListDailyUsage(ctx, testScope, 7)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, int64(1), usage[0].TotalConversations)
	assert.Equal(t, int64(2), usage[0].TotalMessages)
	assert.Equal(t, int64(28), usage[0].TotalTokens)
}

func TestService_Process_RouteFollowsAgentType(t *testing.T) {
	var gotPath string
	svc, _ := setupTurn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		agentReply("ok", 1, 1)(w, r)
	}))

	ctx := context.Background()
	cases := []struct {
		agentType string
		wantPath  string
	}{
		{"SDR", "/sdr"},
		{"COPILOT", "/copilot"},
		{"CLOSER", "/copilot"},
		{"SUPPORT", "/support"},
		{"banana", "/sdr"},
		{"", "/sdr"},
	}
	for _, tc := range cases {
		_, err := svc.Process(ctx, testScope, Request{
			Message:   "hi",
			AgentType: tc.agentType,
			UserPhone: "+5511999999999",
		})
		require.NoError(t, err, "agent type %q", tc.agentType)
		assert.Equal(t, tc.wantPath, gotPath, "agent type %q", tc.agentType)
	}
}

func TestService_Process_AgentErrorKeepsUserMessage(t *testing.T) {
	svc, st := setupTurn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal agent failure", http.StatusInternalServerError)
	}))

	ctx := context.Background()
	_, err := svc.Process(ctx, testScope, Request{
		Message:   "Hello",
		AgentType: "SDR",
		UserPhone: "+5511999999999",
	})

	var agentErr *agentapi.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, http.StatusInternalServerError, agentErr.StatusCode)

	// The user message survived the failed call and is retrievable.
	convs, err := st.ListConversations(ctx, testScope, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := st.ListMessages(ctx, testScope, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)

	// Nothing was billed for the failed turn.
	usage, err := st.ListDailyUsage(ctx, testScope, 7)
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestService_Process_AgentTimeoutKeepsUserMessage(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "turn_timeout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.UpsertTenant(ctx, 1, "Tenant One"))
	require.NoError(t, st.UpsertInbox(ctx, 1, 27, "WhatsApp"))

	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		agentReply("too late", 1, 1)(w, r)
	}))
	t.Cleanup(agentSrv.Close)

	provider := settings.Static(settings.File{
		Agent: settings.AgentSettings{Endpoint: agentSrv.URL, TimeoutMs: 50},
	})
	svc := New(conversation.New(st, nil), agentapi.NewClient(provider, nil), st, nil)

	_, err = svc.Process(ctx, testScope, Request{
		Message:   "Hello",
		AgentType: "SDR",
		UserPhone: "+5511999999999",
	})
	require.ErrorIs(t, err, agentapi.ErrAgentTimeout)

	convs, err := st.ListConversations(ctx, testScope, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := st.ListMessages(ctx, testScope, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func TestService_Process_InvalidPhoneAfterRecording(t *testing.T) {
	svc, st := setupTurn(t, agentReply("unreachable", 1, 1))

	ctx := context.Background()
	_, err := svc.Process(ctx, testScope, Request{
		Message:   "Hello",
		AgentType: "SDR",
		UserPhone: "11999999999", // missing plus sign
	})
	require.ErrorIs(t, err, agentapi.ErrInvalidPhone)

	// The phone guard fires inside the gateway, after the user message was
	// recorded. The message stays per the no-rollback policy.
	convs, err := st.ListConversations(ctx, testScope, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := st.ListMessages(ctx, testScope, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

// failingUsage always rejects the write, standing in for a degraded ledger.
type failingUsage struct{}

func (failingUsage) RecordUsage(context.Context, tenant.Scope, time.Time, store.UsageDelta) error {
	return errors.New("ledger unavailable")
}

func TestService_Process_UsageFailureDoesNotFailTurn(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "turn_usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.UpsertTenant(ctx, 1, "Tenant One"))
	require.NoError(t, st.UpsertInbox(ctx, 1, 27, "WhatsApp"))

	agentSrv := httptest.NewServer(agentReply("Hi!", 5, 3))
	t.Cleanup(agentSrv.Close)

	provider := settings.Static(settings.File{
		Agent: settings.AgentSettings{Endpoint: agentSrv.URL, TimeoutMs: 2000},
	})
	svc := New(conversation.New(st, nil), agentapi.NewClient(provider, nil), failingUsage{}, nil)

	result, err := svc.Process(ctx, testScope, Request{
		Message:   "Hello",
		AgentType: "SDR",
		UserPhone: "+5511999999999",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", result.AssistantMessage.Content)

	// Both message halves landed despite the accounting failure.
	msgs, err := st.ListMessages(ctx, testScope, result.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
