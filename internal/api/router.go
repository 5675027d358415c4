// Package api exposes the import engine to a local UI process over
// HTTP: a thin, optional transport that the core logic packages
// (internal/resolver, internal/importpipeline, internal/index,
// internal/cache) have zero dependency on. Grounded on the teacher's
// api.Server: chi router, standard middleware stack, ServeHTTP
// delegating to the router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vaultbridge/importengine/internal/cache"
	"github.com/vaultbridge/importengine/internal/download"
	"github.com/vaultbridge/importengine/internal/importpipeline"
	"github.com/vaultbridge/importengine/internal/index"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/notifier"
	"github.com/vaultbridge/importengine/internal/persist/graphmirror"
	"github.com/vaultbridge/importengine/internal/persist/pgmirror"
	"github.com/vaultbridge/importengine/internal/resolver"
	"go.uber.org/zap"
)

// Server holds the engine components the HTTP surface fronts.
type Server struct {
	router      chi.Router
	logger      *zap.Logger
	resolver    *resolver.Resolver
	pipeline    *importpipeline.Pipeline
	idx         *index.Index
	cache       *cache.Cache
	downloads   *download.Manager
	defaults    model.EffectiveImportSettings
	pgMirror    *pgmirror.Store
	graphMirror *graphmirror.Store
	notifier    *notifier.Notifier
}

// NewServer creates an API server with every route configured.
// pgMirror and graphMirror are optional (nil when the corresponding
// mirror is disabled in config): their routes answer 404 rather than
// panicking when absent. notif is optional too: a nil notifier simply
// means handleImport skips the completion notification.
func NewServer(
	logger *zap.Logger,
	res *resolver.Resolver,
	pipeline *importpipeline.Pipeline,
	idx *index.Index,
	c *cache.Cache,
	downloads *download.Manager,
	defaults model.EffectiveImportSettings,
	pgMirror *pgmirror.Store,
	graphMirror *graphmirror.Store,
	notif *notifier.Notifier,
) *Server {
	s := &Server{
		logger:      logger,
		resolver:    res,
		pipeline:    pipeline,
		idx:         idx,
		cache:       c,
		downloads:   downloads,
		defaults:    defaults,
		pgMirror:    pgMirror,
		graphMirror: graphMirror,
		notifier:    notif,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(jsonContentType)

	r.Get("/healthz", s.handleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/resolve", s.handleResolve)
		r.Post("/import", s.handleImport)
		r.Post("/import/{id}/cancel", s.handleImportCancel)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Get("/events", s.handleSSEEvents)
		r.Get("/mirror/assets", s.handleMirrorAssets)
		r.Get("/mirror/dependents/{orgID}/{projectID}/{assetID}", s.handleMirrorDependents)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying chi router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}
