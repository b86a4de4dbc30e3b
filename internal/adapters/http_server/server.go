package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Options struct {
	Timeout       time.Duration // read routes
	ImportTimeout time.Duration // POST /v1/imports
	ImportsPerMin int           // 0 disables the import limiter
}

type Server struct {
	mux  *chi.Mux
	opts Options
}

func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = 5 * time.Minute
	}
	m := chi.NewRouter()

	// All middlewares go here (before any routes are added)
	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	return &Server{mux: m, opts: opts}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

func (s *Server) importLimiter() *rate.Limiter {
	if s.opts.ImportsPerMin <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.opts.ImportsPerMin)), s.opts.ImportsPerMin)
}
