package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"carnival/internal/identity"

	"github.com/go-chi/chi/v5"
)

// shutdownGrace bounds how long in-flight requests get on shutdown.
const shutdownGrace = 5 * time.Second

// ServerConfig wires the API server.
type ServerConfig struct {
	Addr        string
	Lobby       Lobby
	Issuer      *identity.Issuer
	Hub         *WebSocketHub // shared with the lobby as its publisher
	DevTokens   bool
	RateLimit   RateLimitConfig
	CORSOrigins []string
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	addr        string
	router      *chi.Mux
	hub         *WebSocketHub
	rateLimiter *IPRateLimiter
}

// NewServer builds the server. No listener is opened until Run.
func NewServer(cfg ServerConfig) *Server {
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig
	}
	s := &Server{
		addr:        cfg.Addr,
		hub:         cfg.Hub,
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}
	s.router = NewRouter(RouterConfig{
		Lobby:       cfg.Lobby,
		Issuer:      cfg.Issuer,
		Hub:         cfg.Hub,
		DevTokens:   cfg.DevTokens,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
	})
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 API server starting on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("🛑 API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	err := srv.Shutdown(shutdownCtx)
	s.stop()
	return err
}

func (s *Server) stop() {
	s.rateLimiter.Stop()
}
