package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stack-queue-parking/internal/parking"
)

type Options struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	ServiceName    string
	Logger         *slog.Logger

	// History backs GET /history. Nil serves an empty list.
	History History
	// Stream serves GET /stream. Nil leaves the route unregistered.
	Stream http.Handler
}

type Server struct {
	httpServer *http.Server
	handler    *Handler
	metrics    *Metrics
	logger     *slog.Logger
}

func NewServer(lot *parking.InstrumentedLot, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	handler := NewHandler(lot, opts.History, opts.ServiceName, opts.Logger)
	metrics := NewMetrics(lot)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(metrics.Middleware)
	r.Use(TracingMiddleware(opts.ServiceName))
	r.Use(RecoveryMiddleware(opts.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.Get("/health", handler.HealthCheck)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Get("/"+parking.OpState, handler.GetState)
	r.Post("/"+parking.OpParkStack, handler.ParkStack)
	r.Post("/"+parking.OpParkQueue, handler.ParkQueue)
	r.Post("/"+parking.OpRemoveStack, handler.RemoveStack)
	r.Post("/"+parking.OpRemoveQueue, handler.RemoveQueue)
	r.Post("/"+parking.OpClearAll, handler.ClearAll)

	r.Get("/history", handler.History)
	if opts.Stream != nil {
		r.Get("/stream", opts.Stream.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	httpServer := &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		metrics:    metrics,
		logger:     opts.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}
