// Package server exposes the simulation core over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"darkgrid/core/engine"
	"darkgrid/core/fault"
	"darkgrid/gateway/middleware"
	"darkgrid/pubsub"
)

// EventStream is the subscriber half of the broadcaster used by the
// WebSocket handler.
type EventStream interface {
	Subscribe(channel string) (<-chan pubsub.Message, func())
}

// Config captures the dependencies required to construct the server.
type Config struct {
	DB          *gorm.DB
	Engine      *engine.Manager
	Stream      EventStream
	DevMode     bool
	Log         *slog.Logger
	ActionsRate middleware.RateLimit
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	db      *gorm.DB
	engine  *engine.Manager
	stream  EventStream
	devMode bool
	log     *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router with authentication, rate
// limiting, and the full /v1 surface.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	srv := &Server{
		db:      cfg.DB,
		engine:  cfg.Engine,
		stream:  cfg.Stream,
		devMode: cfg.DevMode,
		log:     cfg.Log,
	}
	srv.router = srv.buildRouter(cfg.ActionsRate)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(actionsRate middleware.RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestIDEcho)

	authenticate := middleware.Authenticate(s.db)
	actionsLimiter := middleware.NewRateLimiter(actionsRate)

	r.Route("/v1", func(api chi.Router) {
		api.Get("/world", s.GetWorld)
		api.Get("/world/", s.GetWorld)
		api.Get("/entities", s.ListEntities)
		api.Get("/entities/", s.ListEntities)
		api.Get("/entities/{id}", s.GetEntity)
		api.Get("/market/listings", s.ListListings)
		api.Get("/currency", s.CurrencyMetadata)
		api.Get("/currency/", s.CurrencyMetadata)
		api.Get("/events", s.ListEvents)

		api.Group(func(protected chi.Router) {
			protected.Use(authenticate)
			protected.With(actionsLimiter.Middleware).Post("/actions", s.SubmitActions)
			protected.With(actionsLimiter.Middleware).Post("/actions/", s.SubmitActions)
			protected.Post("/market/listings", s.CreateListing)
			protected.Post("/market/listings/{id}/buy", s.BuyListing)
			protected.Post("/market/listings/{id}/cancel", s.CancelListing)
			protected.Get("/currency/balance", s.GetBalance)
			protected.Post("/currency/transfer", s.Transfer)
			protected.Post("/currency/mint_encrypted", s.MintEncrypted)
			protected.Get("/currency/packets", s.ListPackets)
			protected.Post("/currency/decrypt", s.DecryptPacket)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireDevMode)
			admin.Post("/tick/advance", s.AdvanceTick)
			admin.Post("/world/reset", s.ResetWorld)
			admin.Get("/replay/verify", s.VerifyReplay)
		})
	})

	r.Get("/ws", s.StreamEvents)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	return r
}

// requireDevMode gates admin surfaces behind the dev-mode flag.
func (s *Server) requireDevMode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.devMode {
			s.writeDetail(w, http.StatusForbidden, "admin disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDEcho(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// inTx runs fn in one session scoped to the request: committed on success,
// rolled back on any error.
func (s *Server) inTx(r *http.Request, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(r.Context()).Transaction(fn)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a core error to its status and a human-readable detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := fault.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
		s.writeDetail(w, status, "internal error")
		return
	}
	s.writeDetail(w, status, err.Error())
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fault.Validationf("invalid payload")
	}
	return nil
}
