// Package api exposes filing processing and stored results over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/ratio-cli/internal/config"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/store"
)

// Processor computes the result for one filing.
type Processor interface {
	Process(ctx context.Context, in *model.FilingInput) (*model.FilingResult, error)
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	proc    Processor
	store   store.Store
	limiter *rate.Limiter
	cfg     config.ServerConfig
	places  int
}

// NewServer creates and configures the HTTP server. places is the number
// of decimal places used for rounded ratio values in responses.
func NewServer(proc Processor, st store.Store, cfg config.ServerConfig, places int) *Server {
	s := &Server{
		proc:    proc,
		store:   st,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
		places:  places,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimit(s.limiter))

		r.Get("/filings", s.handleListFilings)
		r.Post("/filings", s.handleCreateFiling)
		r.Get("/filings/{filingID}", s.handleGetFiling)
		r.Get("/filings/{filingID}/ratios", s.handleGetRatios)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}
