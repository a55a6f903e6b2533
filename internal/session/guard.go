package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// The guard tracks the principal established by the external identity
// provider. State machine: resolving -> {authenticated, anonymous};
// authenticated -> anonymous on logout or session expiry; anonymous ->
// authenticated on external sign-in. Nothing else.

const (
	Resolving     State = "resolving"
	Authenticated State = "authenticated"
	Anonymous     State = "anonymous"
)

type (
	State string

	Guard struct {
		auth gateway.SessionProvider

		mu       sync.Mutex
		state    State
		current  *core.Principal
		watchers map[int]func(*core.Principal)
		nextW    int
		closed   bool

		unsubscribe func()
	}
)

func New(auth gateway.SessionProvider) *Guard {
	return &Guard{
		auth:     auth,
		state:    Resolving,
		watchers: make(map[int]func(*core.Principal)),
	}
}

// Resolve performs the initial session lookup and starts observing
// external session changes. A lookup failure resolves to anonymous; it
// never crashes or blocks sign-in later.
func (g *Guard) Resolve(ctx context.Context) error {
	principal, err := g.auth.Session(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Session resolution failed", "error", err)
		principal = nil
	}
	g.apply(principal)

	cancel := g.auth.OnSessionChange(func(p *core.Principal) {
		g.apply(p)
	})

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		cancel()
		return nil
	}
	g.unsubscribe = cancel
	g.mu.Unlock()

	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	return nil
}

// CurrentUser returns the authenticated principal, or nil.
func (g *Guard) CurrentUser() *core.Principal {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	p := *g.current
	return &p
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Loading reports whether the initial resolution is still in progress.
func (g *Guard) Loading() bool {
	return g.State() == Resolving
}

// OnChange registers an observer for principal changes (nil on sign-out).
// The returned func unregisters it.
func (g *Guard) OnChange(fn func(*core.Principal)) func() {
	g.mu.Lock()
	id := g.nextW
	g.nextW++
	g.watchers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.watchers, id)
		g.mu.Unlock()
	}
}

// Logout invalidates the remote session. The local principal is cleared
// even when the remote call fails, so the caller always ends up signed
// out locally.
func (g *Guard) Logout(ctx context.Context) error {
	err := g.auth.SignOut(ctx)
	g.apply(nil)
	if err != nil {
		slog.WarnContext(ctx, "Remote sign-out failed, cleared local session anyway", "error", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Close stops observing session changes.
func (g *Guard) Close() {
	g.mu.Lock()
	g.closed = true
	cancel := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (g *Guard) apply(p *core.Principal) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if p == nil {
		g.state = Anonymous
		g.current = nil
	} else {
		g.state = Authenticated
		cp := *p
		g.current = &cp
	}
	watchers := make([]func(*core.Principal), 0, len(g.watchers))
	for _, fn := range g.watchers {
		watchers = append(watchers, fn)
	}
	g.mu.Unlock()

	for _, fn := range watchers {
		fn(p)
	}
}
