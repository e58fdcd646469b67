// ABOUTME: Tests for the HTTP auth middleware
// ABOUTME: Exercises bearer extraction, token validation and inbox header binding

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom360/chat-gateway/internal/tenant"
)

func authedRequest(t *testing.T, v *JWTVerifier, tenantID int64, inboxHeader string) *http.Request {
	t.Helper()
	token, err := v.Generate(tenantID, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if inboxHeader != "" {
		req.Header.Set("X-Inbox-ID", inboxHeader)
	}
	return req
}

func TestHTTPAuthMiddleware_BindsScope(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	var gotScope tenant.Scope
	var gotOK bool
	handler := HTTPAuthMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotScope, gotOK = tenant.FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, v, 7, "27"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotOK)
	assert.Equal(t, tenant.Scope{TenantID: 7, InboxID: 27}, gotScope)
}

func TestHTTPAuthMiddleware_MissingHeader(t *testing.T) {
	handler := HTTPAuthMiddleware(NewJWTVerifier([]byte("s")))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization header")
}

func TestHTTPAuthMiddleware_BadScheme(t *testing.T) {
	handler := HTTPAuthMiddleware(NewJWTVerifier([]byte("s")))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPAuthMiddleware_InvalidToken(t *testing.T) {
	handler := HTTPAuthMiddleware(NewJWTVerifier([]byte("s")))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestHTTPAuthMiddleware_BadInboxHeader(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	handler := HTTPAuthMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	cases := []string{"", "abc", "0", "-3"}
	for _, inbox := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(t, v, 7, inbox))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "inbox header %q", inbox)
	}
}
