// Package server provides the read-only HTTP API over the pipeline's
// engines and store.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/modules/heatmap"
	"github.com/hynous/hynous-data/internal/modules/hlp"
	"github.com/hynous/hynous-data/internal/modules/orderflow"
	"github.com/hynous/hynous-data/internal/modules/poller"
	"github.com/hynous/hynous-data/internal/modules/smartmoney"
	"github.com/hynous/hynous-data/internal/modules/stream"
	"github.com/hynous/hynous-data/internal/modules/tracker"
	"github.com/hynous/hynous-data/internal/modules/whales"
	"github.com/hynous/hynous-data/internal/ratelimit"
	"github.com/hynous/hynous-data/internal/store"
)

// Components is the typed bundle of engines the handlers read from.
// A nil field means the component is disabled; its routes degrade to
// empty or not-available responses.
type Components struct {
	Stream     *stream.Stream
	Poller     *poller.Poller
	HLP        *hlp.Tracker
	Heatmap    *heatmap.Engine
	Flow       *orderflow.Engine
	Whales     *whales.Tracker
	SmartMoney *smartmoney.Engine
	Tracker    *tracker.Tracker
}

// Config holds server wiring.
type Config struct {
	Host       string
	Port       int
	Log        zerolog.Logger
	Store      *store.Store
	Limiter    *ratelimit.Limiter
	Components Components
}

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	st         *store.Store
	limiter    *ratelimit.Limiter
	components Components
	startedAt  time.Time
}

// New builds the router and the underlying http.Server.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		st:         cfg.Store,
		limiter:    cfg.Limiter,
		components: cfg.Components,
		startedAt:  time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/heatmap/{coin}", s.handleHeatmap)
		r.Get("/hlp/positions", s.handleHLPPositions)
		r.Get("/hlp/sentiment", s.handleHLPSentiment)
		r.Get("/orderflow/{coin}", s.handleOrderFlow)
		r.Get("/whales/{coin}", s.handleWhales)
		r.Get("/smartmoney", s.handleSmartMoney)
		r.Get("/liquidations/{coin}", s.handleLiquidations)
		r.Get("/stats", s.handleStats)
		r.Get("/system", s.handleSystem)

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", s.handleWatchlistList)
			r.Post("/", s.handleWatchlistAdd)
			r.Get("/changes", s.handleWatchlistChanges)
			r.Delete("/{address}", s.handleWatchlistRemove)
			r.Get("/{address}/profile", s.handleWatchlistProfile)
		})
	})
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for handler tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
