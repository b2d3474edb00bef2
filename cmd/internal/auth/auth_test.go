package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	"github.com/007-bg/Live-Attendance-System/cmd/security/token"
)

func newTestResolver(t *testing.T) (*Resolver, *token.Manager) {
	t.Helper()

	tm, err := token.NewManager(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("token.NewManager: %v", err)
	}
	dir := identity.NewInMemoryStore()
	for _, u := range []identity.User{
		{ID: "t1", Role: identity.RoleTeacher},
		{ID: "s1", Role: identity.RoleStudent},
		{ID: "x1", Role: "janitor"},
	} {
		if err := dir.PutUser(u); err != nil {
			t.Fatalf("PutUser: %v", err)
		}
	}
	r, err := NewResolver(tm, dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r, tm
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "none", target: "/ws", want: ""},
		{name: "query", target: "/ws?token=abc", want: "abc"},
		{name: "header", target: "/ws", header: "Bearer xyz", want: "xyz"},
		{name: "header case", target: "/ws", header: "bearer xyz", want: "xyz"},
		{name: "query wins", target: "/ws?token=abc", header: "Bearer xyz", want: "abc"},
		{name: "basic ignored", target: "/ws", header: "Basic Zm9v", want: ""},
		{name: "malformed header", target: "/ws", header: "Bearer", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := TokenFromRequest(r); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r, tm := newTestResolver(t)
	ctx := context.Background()

	raw, err := tm.Issue("t1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := r.Resolve(ctx, raw)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID != "t1" || p.Role != identity.RoleTeacher || !p.Authenticated() {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestResolve_Unauthenticated(t *testing.T) {
	t.Parallel()

	r, tm := newTestResolver(t)
	ctx := context.Background()

	ghost, _ := tm.Issue("ghost")
	noRole, _ := tm.Issue("x1")

	for name, raw := range map[string]string{
		"garbage":      "nope",
		"unknown user": ghost,
		"no role":      noRole,
	} {
		p, err := r.Resolve(ctx, raw)
		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
		if p.Authenticated() {
			t.Fatalf("%s: expected anonymous principal, got %+v", name, p)
		}
	}
}

func TestResolveRequest_MissingToken(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)
	_, err := r.ResolveRequest(httptest.NewRequest("GET", "/ws", nil))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
