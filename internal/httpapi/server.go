// ABOUTME: HTTP surface of the chat gateway: router, handlers, error mapping
// ABOUTME: All /api routes except health run behind tenant-scoped JWT auth

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dom360/chat-gateway/internal/agentapi"
	"github.com/dom360/chat-gateway/internal/auth"
	"github.com/dom360/chat-gateway/internal/store"
	"github.com/dom360/chat-gateway/internal/tenant"
	"github.com/dom360/chat-gateway/internal/turn"
)

// defaultListLimit caps conversation listings when the client sends none.
const defaultListLimit = 50

// Server holds the handler dependencies for the chat API.
type Server struct {
	turns    *turn.Service
	store    store.Store
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// New creates the API server.
func New(turns *turn.Service, st store.Store, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		turns:    turns,
		store:    st,
		verifier: verifier,
		logger:   logger.With("component", "httpapi"),
	}
}

// Router builds the chi router with auth applied to tenant-scoped routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(s.verifier))
		r.Post("/api/chat", s.handleChat)
		r.Get("/api/conversations", s.handleListConversations)
		r.Get("/api/conversations/{id}/messages", s.handleListMessages)
		r.Get("/api/dashboard", s.handleDashboard)
	})

	return r
}

// chatRequest is the inbound body of POST /api/chat.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	AgentType      string `json:"agent_type"`
	UserPhone      string `json:"user_phone"`
	UserName       string `json:"user_name"`
	TenantName     string `json:"tenant_name"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	result, err := s.turns.Process(r.Context(), scope, turn.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		AgentType:      req.AgentType,
		UserPhone:      req.UserPhone,
		UserName:       req.UserName,
		TenantName:     req.TenantName,
	})
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// writeTurnError maps orchestrator failures onto the API status contract:
// caller mistakes are 400, agent rejections 502, agent timeouts 504, and
// everything else (storage) 500.
func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	var agentErr *agentapi.AgentError
	switch {
	case errors.Is(err, agentapi.ErrInvalidPhone),
		errors.Is(err, tenant.ErrInvalidTenant),
		errors.Is(err, tenant.ErrInvalidInbox):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agentapi.ErrAgentTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "agent call timed out")
	case errors.As(err, &agentErr):
		s.writeError(w, http.StatusBadGateway, "agent service error")
	default:
		s.logger.Error("chat turn failed", "error", err, "path", r.URL.Path)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	conversations, err := s.store.ListConversations(r.Context(), scope, limit, offset)
	if err != nil {
		s.logger.Error("listing conversations failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversationViews(conversations),
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return
	}
	conversationID := chi.URLParam(r, "id")

	// Existence check first so an unknown id is 404 rather than an empty
	// list, and a foreign tenant's id is indistinguishable from unknown.
	if _, err := s.store.GetConversation(r.Context(), scope, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("loading conversation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	messages, err := s.store.ListMessages(r.Context(), scope, conversationID)
	if err != nil {
		s.logger.Error("listing messages failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        messageViews(messages),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing tenant scope")
		return
	}

	totals, err := s.store.GetTenantTotals(r.Context(), scope)
	if err != nil {
		s.logger.Error("loading totals failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byAgent, err := s.store.CountConversationsByAgent(r.Context(), scope)
	if err != nil {
		s.logger.Error("loading agent breakdown failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	daily, err := s.store.ListDailyUsage(r.Context(), scope, 30)
	if err != nil {
		s.logger.Error("loading daily usage failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"totals": map[string]any{
			"conversations": totals.Conversations,
			"messages":      totals.Messages,
			"tokens":        totals.Tokens,
		},
		"conversations_by_agent": byAgent,
		"daily_usage":            dailyUsageViews(daily),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
