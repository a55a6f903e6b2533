package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/CharlyBGood/planificadorfinanciero/internal/cache"
	"github.com/CharlyBGood/planificadorfinanciero/internal/documents"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
	"github.com/CharlyBGood/planificadorfinanciero/internal/objectives"
	"github.com/CharlyBGood/planificadorfinanciero/internal/session"
)

// Server exposes the JSON API. Every data route is scoped to the principal
// carried by the bearer token; the realtime feed is served over SSE.
type Server struct {
	http.Server

	gw         gateway.Gateway
	auth       gateway.Authenticator
	objectives *objectives.Service
	documents  *documents.Service
	tokens     *session.TokenManager

	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// Per-user summary caches, invalidated on every write.
	summaryCache   *cache.LRUCache[summaryPayload]
	objectiveCache *cache.LRUCache[[]objectiveSummaryPayload]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// Deps carries everything the server needs. Logos may be nil inside the
// document service; the rest is required.
type Deps struct {
	Gateway    gateway.Gateway
	Auth       gateway.Authenticator
	Objectives *objectives.Service
	Documents  *documents.Service
	Tokens     *session.TokenManager
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		gw:               deps.Gateway,
		auth:             deps.Auth,
		objectives:       deps.Objectives,
		documents:        deps.Documents,
		tokens:           deps.Tokens,
		rateLimiter:      newRateLimiter(),
		metrics:          &securityMetrics{},
		summaryCache:     cache.NewLRUCache[summaryPayload](500, 2*time.Minute),
		objectiveCache:   cache.NewLRUCache[[]objectiveSummaryPayload](500, 2*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("POST /api/auth/register", s.withSecurity(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.withSecurity(s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.withSecurity(s.requireAuth(s.handleLogout)))
	mux.HandleFunc("GET /api/auth/me", s.withSecurity(s.requireAuth(s.handleMe)))

	mux.HandleFunc("GET /api/transactions", s.withSecurity(s.requireAuth(s.handleListTransactions)))
	mux.HandleFunc("POST /api/transactions", s.withSecurity(s.requireAuth(s.handleCreateTransaction)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withSecurity(s.requireAuth(s.handleDeleteTransaction)))
	mux.HandleFunc("GET /api/summary", s.withSecurity(s.requireAuth(s.handleSummary)))

	mux.HandleFunc("GET /api/objectives", s.withSecurity(s.requireAuth(s.handleListObjectives)))
	mux.HandleFunc("POST /api/objectives", s.withSecurity(s.requireAuth(s.handleCreateObjective)))
	mux.HandleFunc("PUT /api/objectives/{id}", s.withSecurity(s.requireAuth(s.handleUpdateObjective)))
	mux.HandleFunc("DELETE /api/objectives/{id}", s.withSecurity(s.requireAuth(s.handleDeleteObjective)))
	mux.HandleFunc("GET /api/objectives/summary", s.withSecurity(s.requireAuth(s.handleObjectiveSummaries)))
	mux.HandleFunc("GET /api/objectives/{id}/summary", s.withSecurity(s.requireAuth(s.handleObjectiveSummary)))

	mux.HandleFunc("GET /api/documents", s.withSecurity(s.requireAuth(s.handleListDocuments)))
	mux.HandleFunc("POST /api/documents", s.withSecurity(s.requireAuth(s.handleCreateDocument)))
	mux.HandleFunc("GET /api/documents/{id}", s.withSecurity(s.requireAuth(s.handleGetDocument)))
	mux.HandleFunc("PUT /api/documents/{id}", s.withSecurity(s.requireAuth(s.handleUpdateDocument)))
	mux.HandleFunc("DELETE /api/documents/{id}", s.withSecurity(s.requireAuth(s.handleDeleteDocument)))

	mux.HandleFunc("GET /api/events", s.withSecurity(s.requireAuth(s.handleEvents)))

	return s
}

// startCacheCleanup periodically drops expired summary entries.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.summaryCache.CleanExpired() + s.objectiveCache.CleanExpired()
			if removed > 0 {
				slog.Debug("cache cleanup completed", "entries_removed", removed)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) invalidateSummaries(userID string) {
	s.summaryCache.Delete(userID)
	s.objectiveCache.Delete(userID)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
