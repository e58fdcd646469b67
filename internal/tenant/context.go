// ABOUTME: Tenant isolation context validated once per request and threaded through all storage access
// ABOUTME: Provides Resolve for identifier validation and WithScope/FromContext for propagation

package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Validation errors for caller-supplied identifiers.
var (
	ErrInvalidTenant = errors.New("invalid tenant id")
	ErrInvalidInbox  = errors.New("invalid inbox id")
)

// Scope is the isolation token for one validated (tenant, inbox) pair.
// Every store method requires a Scope so that no query can be issued
// without a tenant predicate.
type Scope struct {
	TenantID int64
	InboxID  int64
}

// Resolve validates the raw tenant and inbox identifiers supplied by the
// caller (already authenticated upstream) and returns an isolation scope.
// It does not check existence against storage; foreign-key constraints
// enforce that at write time.
func Resolve(tenantID, inboxID string) (Scope, error) {
	tid, err := strconv.ParseInt(tenantID, 10, 64)
	if err != nil || tid <= 0 {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}

	iid, err := strconv.ParseInt(inboxID, 10, 64)
	if err != nil || iid <= 0 {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidInbox, inboxID)
	}

	return Scope{TenantID: tid, InboxID: iid}, nil
}

// scopeKey is the key type for storing a Scope in context.Context.
type scopeKey struct{}

// WithScope returns a new context with the isolation scope attached.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext retrieves the Scope from the context. The second return
// value is false if no scope was attached.
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok
}
