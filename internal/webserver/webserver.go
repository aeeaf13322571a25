// Package webserver serves the dashboard pages and the live update
// channel.
package webserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marigold-hq/marigold/internal/broadcast"
	"github.com/marigold-hq/marigold/internal/db"
	"github.com/marigold-hq/marigold/internal/state"
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Config struct {
	BrokerURL    string
	AutoRefresh  bool
	PurgeOffline time.Duration // 0 disables offline-worker purging
	Auth         AuthConfig
}

// WorkerRefresher triggers the out-of-band worker list refresh. A nil
// refresher makes refresh requests a no-op.
type WorkerRefresher interface {
	RefreshWorkers(ctx context.Context) error
}

type Server struct {
	st        *state.State
	broadcast *broadcast.Server
	store     *db.DB
	refresher WorkerRefresher
	cfg       Config
	logger    *slog.Logger
}

func New(st *state.State, bc *broadcast.Server, store *db.DB, refresher WorkerRefresher, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		st:        st,
		broadcast: bc,
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/api/auth/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/ws/dashboard", s.handleUpdates)
	})
	r.Get("/", http.RedirectHandler("/dashboard", http.StatusFound).ServeHTTP)
	return r
}
