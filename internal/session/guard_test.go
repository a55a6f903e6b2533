package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway/memory"
)

// failingAuth wraps the memory provider with an injectable sign-out error.
type failingAuth struct {
	*memory.Store
	signOutErr error
}

func (f *failingAuth) SignOut(ctx context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	return f.Store.SignOut(ctx)
}

func TestGuardStartsResolving(t *testing.T) {
	g := New(memory.New())
	if g.State() != Resolving {
		t.Errorf("expected resolving, got %s", g.State())
	}
	if !g.Loading() {
		t.Error("expected loading during resolution")
	}
}

func TestResolveAnonymous(t *testing.T) {
	g := New(memory.New())
	defer g.Close()

	if err := g.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if g.State() != Anonymous {
		t.Errorf("expected anonymous, got %s", g.State())
	}
	if g.CurrentUser() != nil {
		t.Error("expected no principal")
	}
}

func TestResolveExistingSession(t *testing.T) {
	auth := memory.New()
	ctx := context.Background()
	if _, err := auth.RegisterUser(context.Background(), "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}
	principal, err := auth.SignIn(ctx, "carla@test.dev", "secreta")
	if err != nil {
		t.Fatal(err)
	}

	g := New(auth)
	defer g.Close()
	if err := g.Resolve(ctx); err != nil {
		t.Fatal(err)
	}

	if g.State() != Authenticated {
		t.Errorf("expected authenticated, got %s", g.State())
	}
	if got := g.CurrentUser(); got == nil || got.ID != principal.ID {
		t.Errorf("expected principal %s, got %v", principal.ID, got)
	}
}

func TestExternalSignInMovesToAuthenticated(t *testing.T) {
	auth := memory.New()
	ctx := context.Background()
	if _, err := auth.RegisterUser(context.Background(), "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}

	g := New(auth)
	defer g.Close()
	if err := g.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	if g.State() != Anonymous {
		t.Fatalf("expected anonymous before sign-in, got %s", g.State())
	}

	var mu sync.Mutex
	var changes []*core.Principal
	cancel := g.OnChange(func(p *core.Principal) {
		mu.Lock()
		changes = append(changes, p)
		mu.Unlock()
	})
	defer cancel()

	if _, err := auth.SignIn(ctx, "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}

	if g.State() != Authenticated {
		t.Errorf("expected authenticated after external sign-in, got %s", g.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || changes[0] == nil {
		t.Errorf("expected one sign-in notification, got %v", changes)
	}
}

func TestLogout(t *testing.T) {
	auth := memory.New()
	ctx := context.Background()
	if _, err := auth.RegisterUser(context.Background(), "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}
	if _, err := auth.SignIn(ctx, "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}

	g := New(auth)
	defer g.Close()
	if err := g.Resolve(ctx); err != nil {
		t.Fatal(err)
	}

	if err := g.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if g.State() != Anonymous {
		t.Errorf("expected anonymous after logout, got %s", g.State())
	}
}

func TestLogoutClearsLocalStateOnRemoteFailure(t *testing.T) {
	auth := &failingAuth{Store: memory.New(), signOutErr: errors.New("network down")}
	ctx := context.Background()
	if _, err := auth.RegisterUser(context.Background(), "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}
	if _, err := auth.SignIn(ctx, "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}

	g := New(auth)
	defer g.Close()
	if err := g.Resolve(ctx); err != nil {
		t.Fatal(err)
	}

	err := g.Logout(ctx)
	if err == nil {
		t.Error("expected remote failure to surface")
	}
	if g.State() != Anonymous {
		t.Errorf("local state must be anonymous even on remote failure, got %s", g.State())
	}
	if g.CurrentUser() != nil {
		t.Error("principal must be cleared")
	}
}

func TestCloseStopsNotifications(t *testing.T) {
	auth := memory.New()
	ctx := context.Background()
	if _, err := auth.RegisterUser(context.Background(), "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}

	g := New(auth)
	if err := g.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	g.Close()

	if _, err := auth.SignIn(ctx, "carla@test.dev", "secreta"); err != nil {
		t.Fatal(err)
	}
	if g.State() == Authenticated {
		t.Error("closed guard must not track session changes")
	}
}
