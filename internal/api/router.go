package api

import (
	"context"
	"net/http"

	"carnival/internal/game"
	"carnival/internal/identity"
	"carnival/internal/lobby"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Lobby is the part of lobby.Lobby the API calls.
type Lobby interface {
	Session(ctx context.Context, u identity.User) (*lobby.Session, error)
	Games() []game.Entry
	PracticeLeaders(id game.ID, n int) ([]game.Standing, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Lobby:  lb,
//	    Issuer: issuer,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Lobby serves every player route (required)
	Lobby Lobby

	// Issuer verifies bearer tokens (required)
	Issuer *identity.Issuer

	// Hub serves /ws. If nil the route is not mounted.
	Hub *WebSocketHub

	// DevTokens mounts POST /auth/dev-token.
	DevTokens bool

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultOrigins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler dependencies.
type routerHandlers struct {
	lobby Lobby
	hub   *WebSocketHub
}

// NewRouter constructs the HTTP router with all middleware and routes.
// Apart from the rate limiter's cleanup loop it starts nothing, so it is
// safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{lobby: cfg.Lobby, hub: cfg.Hub}
	auth := NewAuthenticator(cfg.Issuer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	if cfg.DevTokens {
		r.Post("/auth/dev-token", auth.handleDevToken)
	}

	r.Route("/api", func(r chi.Router) {
		// Catalogue
		r.Get("/games", h.handleGames)
		r.Get("/practice/leaders/{game}", h.handlePracticeLeaders)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			// Account
			r.Get("/me", h.handleMe)
			r.Get("/transactions", h.handleTransactions)
			r.Post("/deposits", h.handleDeposit)

			// Tournament
			r.Post("/tournament", h.handleEnterTournament)
			r.Get("/tournament", h.handleGetTournament)
			r.Post("/tournament/round", h.handleStartRound)
			r.Post("/tournament/next", h.handleNextRound)
			r.Delete("/tournament", h.handleLeaveTournament)

			// Practice and tutorials
			r.Post("/tutorials/{game}/dismiss", h.handleDismissTutorial)
			r.Post("/practice", h.handleStartPractice)
			r.Get("/practice", h.handlePracticeResults)

			// Live matches
			r.Get("/matches/{id}", h.handleGetMatch)
			r.Post("/matches/{id}/input", h.handleMatchInput)
		})
	})

	if cfg.Hub != nil {
		r.With(auth.Middleware).Get("/ws", h.handleWS)
	}

	return r
}
