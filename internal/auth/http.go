// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the tenant from the bearer token and the inbox from X-Inbox-ID

package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dom360/chat-gateway/internal/tenant"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HTTPAuthMiddleware authenticates a request and binds its tenant scope.
// The tenant comes from the JWT's tenant_id claim, the inbox from the
// X-Inbox-ID header. Every handler behind this middleware can rely on
// tenant.FromContext returning a validated scope.
func HTTPAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			tenantID, err := verifier.Verify(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			scope, err := tenant.Resolve(tenantID, r.Header.Get("X-Inbox-ID"))
			if err != nil {
				writeAuthError(w, http.StatusBadRequest, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), scope)))
		})
	}
}
