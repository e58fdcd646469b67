// ABOUTME: Minimal fake agent for local testing — serves the agent wire contract over HTTP.
// ABOUTME: Usage: fake-agent [-addr :9400] [-latency 200ms]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"
)

type inboundEnvelope struct {
	RequestID string `json:"request_id"`
	Tenant    struct {
		TenantID int64 `json:"tenant_id"`
	} `json:"tenant"`
	Routing struct {
		InboxID   int64  `json:"inbox_id"`
		AgentType string `json:"agent_type"`
	} `json:"routing"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

func main() {
	addr := flag.String("addr", ":9400", "listen address")
	latency := flag.Duration("latency", 200*time.Millisecond, "simulated agent latency")
	flag.Parse()

	mux := http.NewServeMux()
	for _, route := range []string{"/sdr", "/copilot", "/support"} {
		mux.HandleFunc(route, handleChat(route, *latency))
	}

	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("fake-agent listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func handleChat(route string, latency time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		var env inboundEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, "bad envelope: "+err.Error(), http.StatusBadRequest)
			return
		}

		time.Sleep(latency)

		text := fmt.Sprintf("[%s echo for tenant %d] %s", route, env.Tenant.TenantID, env.Message.Content)
		inputTokens := int64(len(env.Message.Content) / 4)
		outputTokens := int64(len(text) / 4)

		log.Printf("request %s: conversation=%s agent=%s content=%q",
			env.RequestID, env.Conversation.ID, env.Routing.AgentType, env.Message.Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"agent_output": map[string]any{
				"text":        text,
				"tool_calls":  []any{},
				"rag_context": []any{},
			},
			"usage": map[string]any{
				"input_tokens":  inputTokens,
				"output_tokens": outputTokens,
				"total_tokens":  inputTokens + outputTokens,
				"model":         "fake-echo-1",
			},
			"latency_ms": latency.Milliseconds(),
		})
	}
}
