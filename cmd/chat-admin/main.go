// ABOUTME: Ops CLI for a running chat-gateway: health, conversations, usage
// ABOUTME: Talks to the HTTP API with a tenant token; seed works on the DB directly

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/dom360/chat-gateway/internal/store"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: chat-admin <command> [flags]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  health         Check gateway health")
		fmt.Println("  conversations  List a tenant's conversations")
		fmt.Println("  usage          Show a tenant's dashboard and ledger")
		fmt.Println("  seed           Create a tenant and inbox in the database")
		fmt.Println()
		fmt.Println("API commands read CHAT_GATEWAY_URL, CHAT_GATEWAY_TOKEN and CHAT_GATEWAY_INBOX")
		fmt.Println("from the environment unless overridden with flags.")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "health":
		err = runHealth(ctx)
	case "conversations":
		err = runConversations(ctx)
	case "usage":
		err = runUsage(ctx)
	case "seed":
		err = runSeed(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		color.New(color.FgRed).Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// apiFlags holds connection settings shared by the API commands.
type apiFlags struct {
	url   string
	token string
	inbox string
}

func parseAPIFlags(cmd string) (*apiFlags, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	url := fs.String("url", envOr("CHAT_GATEWAY_URL", "http://localhost:8080"), "gateway base URL")
	token := fs.String("token", os.Getenv("CHAT_GATEWAY_TOKEN"), "tenant JWT")
	inbox := fs.String("inbox", os.Getenv("CHAT_GATEWAY_INBOX"), "inbox id")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return nil, err
	}
	return &apiFlags{url: *url, token: *token, inbox: *inbox}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (f *apiFlags) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	if f.inbox != "" {
		req.Header.Set("X-Inbox-ID", f.inbox)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func runHealth(ctx context.Context) error {
	flags, err := parseAPIFlags("health")
	if err != nil {
		return err
	}

	var resp struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := flags.get(ctx, "/api/health", &resp); err != nil {
		return err
	}

	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("gateway %s, database %s\n", resp.Status, resp.Database)
	return nil
}

func runConversations(ctx context.Context) error {
	flags, err := parseAPIFlags("conversations")
	if err != nil {
		return err
	}

	var resp struct {
		Conversations []struct {
			ID            string `json:"id"`
			AgentType     string `json:"agent_type"`
			ContactName   string `json:"contact_name"`
			ContactPhone  string `json:"contact_phone"`
			Status        string `json:"status"`
			MessageCount  int64  `json:"message_count"`
			LastMessageAt string `json:"last_message_at"`
		} `json:"conversations"`
	}
	if err := flags.get(ctx, "/api/conversations", &resp); err != nil {
		return err
	}

	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, c := range resp.Conversations {
		cyan.Print(c.ID)
		fmt.Printf("  %-12s %-20s %s", c.AgentType, c.ContactName, c.ContactPhone)
		gray.Printf("  %d msgs, last %s [%s]\n", c.MessageCount, c.LastMessageAt, c.Status)
	}
	return nil
}

func runUsage(ctx context.Context) error {
	flags, err := parseAPIFlags("usage")
	if err != nil {
		return err
	}

	var resp struct {
		Totals struct {
			Conversations int64 `json:"conversations"`
			Messages      int64 `json:"messages"`
			Tokens        int64 `json:"tokens"`
		} `json:"totals"`
		ConversationsByAgent map[string]int64 `json:"conversations_by_agent"`
		DailyUsage           []struct {
			Date        string `json:"date"`
			AgentType   string `json:"agent_type"`
			TotalTokens int64  `json:"total_tokens"`
		} `json:"daily_usage"`
	}
	if err := flags.get(ctx, "/api/dashboard", &resp); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Totals")
	fmt.Printf("  conversations: %d\n", resp.Totals.Conversations)
	fmt.Printf("  messages:      %d\n", resp.Totals.Messages)
	fmt.Printf("  tokens:        %d\n", resp.Totals.Tokens)

	if len(resp.ConversationsByAgent) > 0 {
		bold.Println("By agent")
		for agent, count := range resp.ConversationsByAgent {
			fmt.Printf("  %-12s %d\n", agent, count)
		}
	}

	if len(resp.DailyUsage) > 0 {
		bold.Println("Daily tokens")
		for _, row := range resp.DailyUsage {
			fmt.Printf("  %s  %-12s %d\n", row.Date, row.AgentType, row.TotalTokens)
		}
	}
	return nil
}

// runSeed creates a tenant and inbox directly in the database, for local
// setups where no provisioning system exists yet.
func runSeed(ctx context.Context) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	dbPath := fs.String("db", envOr("CHAT_GATEWAY_DB", "chat.db"), "database path")
	tenantID := fs.Int64("tenant", 0, "tenant id")
	tenantName := fs.String("name", "", "tenant display name")
	inboxID := fs.Int64("inbox", 0, "inbox id")
	inboxName := fs.String("inbox-name", "WhatsApp", "inbox display name")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *tenantID <= 0 || *inboxID <= 0 || *tenantName == "" {
		return fmt.Errorf("usage: chat-admin seed --tenant ID --name NAME --inbox ID [--inbox-name NAME] [--db PATH]")
	}

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := st.UpsertTenant(opCtx, *tenantID, *tenantName); err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	if err := st.UpsertInbox(opCtx, *tenantID, *inboxID, *inboxName); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("tenant %d (%s) with inbox %d (%s) ready in %s\n", *tenantID, *tenantName, *inboxID, *inboxName, *dbPath)
	return nil
}
