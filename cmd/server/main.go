package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"carnival/internal/api"
	"carnival/internal/config"
	"carnival/internal/game"
	"carnival/internal/identity"
	"carnival/internal/ledger"
	"carnival/internal/lobby"
	"carnival/internal/tournament"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎪 ================================")
	log.Println("🎪  CARNIVAL - MINI-GAME SERVER")
	log.Println("🎪 ================================")

	appConfig := config.Load()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	if err := run(appConfig); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("👋 Server stopped")
}

func run(cfg config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer closeStore()

	issuer, err := identity.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	audit := game.NewAuditLog()
	audit.OnDrop(api.RecordAuditDrop)
	if err := audit.Start(cfg.Audit.Path); err != nil {
		log.Printf("⚠️ Audit log disabled: %v", err)
		audit = nil
	} else if cfg.Audit.Path != "" {
		log.Printf("📝 Audit log: %s", cfg.Audit.Path)
	}

	tcfg := tournament.DefaultConfig()
	tcfg.EntryFee = cfg.Tournament.EntryFee
	tcfg.Prize = cfg.Tournament.Prize
	tcfg.Players = cfg.Tournament.Players
	if err := tcfg.Validate(); err != nil {
		return err
	}
	var advancer tournament.Advancer = tournament.AlwaysAdvance{}
	if cfg.Tournament.Field == "synthetic" {
		advancer = tournament.NewSyntheticField()
	}
	log.Printf("🏆 Bracket: %d players, entry %s, prize %s, field %s",
		tcfg.Players, tcfg.EntryFee, tcfg.Prize, cfg.Tournament.Field)

	hub := api.NewWebSocketHub(cfg.Server.MaxWSConnections, api.NewOriginChecker(cfg.Server.CORSOrigins))
	lb := lobby.New(lobby.Config{
		Tournament:   tcfg,
		Advancer:     advancer,
		Frame:        cfg.Match.Frame,
		PublishEvery: cfg.Match.PublishEvery,
	}, lobby.Deps{
		Ledger:    store,
		Audit:     audit,
		Publisher: hub,
		Observer:  api.Metrics{},
	})

	server := api.NewServer(api.ServerConfig{
		Addr:      ":" + strconv.Itoa(cfg.Server.Port),
		Lobby:     lb,
		Issuer:    issuer,
		Hub:       hub,
		DevTokens: cfg.Auth.DevTokens,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RequestsPerSecond,
			Burst:             cfg.Server.Burst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if cfg.Auth.DevTokens {
		log.Println("⚠️ Dev tokens enabled: POST /auth/dev-token issues a token for any email")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if cfg.Server.DebugPort > 0 {
		debugCfg := api.DefaultObservabilityConfig()
		debugCfg.ListenAddr = "127.0.0.1:" + strconv.Itoa(cfg.Server.DebugPort)
		debugCfg.BasicAuthUser = os.Getenv("DEBUG_USER")
		debugCfg.BasicAuthPass = os.Getenv("DEBUG_PASS")
		if dbg := api.NewDebugServer(debugCfg, audit); dbg != nil {
			g.Go(func() error {
				if err := dbg.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("⚠️ Debug server stopped: %v", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return dbg.Shutdown(shutdownCtx)
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		lb.Close()
		if audit != nil {
			audit.Stop()
		}
		return nil
	})

	log.Printf("🚀 Listening on :%d", cfg.Server.Port)
	return g.Wait()
}

// openLedger builds the configured store and returns its closer.
func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Ledger, func(), error) {
	switch cfg.Driver {
	case "memory":
		log.Println("💾 Ledger: in-memory (balances are lost on restart)")
		return ledger.NewMemoryStore(), func() {}, nil
	default:
		store, err := ledger.OpenSQLite(ctx, cfg.Path, ledger.SQLiteOptions{
			BusyTimeout: cfg.BusyTimeout,
			MaxRetries:  cfg.MaxRetries,
			RetryBase:   cfg.RetryBase,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("💾 Ledger: sqlite %s", cfg.Path)
		return store, func() {
			if err := store.Close(); err != nil {
				log.Printf("⚠️ Ledger close: %v", err)
			}
		}, nil
	}
}
