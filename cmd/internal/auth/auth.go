package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	"github.com/007-bg/Live-Attendance-System/cmd/security/token"
)

// ErrUnauthenticated is returned when no valid principal can be resolved.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the resolved identity of a connection or request.
type Principal struct {
	UserID string
	Role   identity.Role
}

// Anonymous is the zero-trust principal.
var Anonymous = Principal{Role: identity.RoleAnonymous}

// Authenticated reports whether p carries a user and a known role.
func (p Principal) Authenticated() bool {
	return p.UserID != "" && p.Role != identity.RoleAnonymous && p.Role != ""
}

// Verifier verifies bearer credentials.
type Verifier interface {
	Verify(raw string) (token.Claims, error)
}

// Resolver turns a raw credential into a Principal.
type Resolver struct {
	tokens Verifier
	users  identity.Store
}

// NewResolver constructs a Resolver.
func NewResolver(tokens Verifier, users identity.Store) (*Resolver, error) {
	if tokens == nil {
		return nil, errors.New("auth: nil verifier")
	}
	if users == nil {
		return nil, errors.New("auth: nil user store")
	}
	return &Resolver{tokens: tokens, users: users}, nil
}

// Resolve verifies raw and loads the user's role.
// Credential and lookup failures wrap ErrUnauthenticated; directory outages do not.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Principal, error) {
	claims, err := r.tokens.Verify(raw)
	if err != nil {
		return Anonymous, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	u, err := r.users.GetUser(ctx, claims.UserID)
	if identity.IsNotFound(err) {
		return Anonymous, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if err != nil {
		return Anonymous, fmt.Errorf("auth: lookup user: %w", err)
	}
	if u.Role == identity.RoleAnonymous {
		return Anonymous, fmt.Errorf("%w: user has no role", ErrUnauthenticated)
	}
	return Principal{UserID: u.ID, Role: u.Role}, nil
}

// ResolveRequest extracts the credential from r and resolves it.
func (r *Resolver) ResolveRequest(req *http.Request) (Principal, error) {
	raw := TokenFromRequest(req)
	if raw == "" {
		return Anonymous, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	return r.Resolve(req.Context(), raw)
}

// TokenFromRequest returns the credential from the query string or the
// Authorization header, or "" when neither carries one.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
