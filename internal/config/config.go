// Package config provides centralized configuration management.
// Every tunable of the server lives here with its default and its
// environment override.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int
	DebugPort         int      // pprof and /metrics; 0 disables
	CORSOrigins       []string // nil means the development defaults
	RequestsPerSecond float64  // per-IP REST limit
	Burst             int
	MaxWSConnections  int // per IP
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:              3000,
		DebugPort:         6060,
		RequestsPerSecond: 20,
		Burst:             40,
		MaxWSConnections:  5,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if v := os.Getenv("DEBUG_PORT"); v != "" {
		cfg.DebugPort = getEnvInt("DEBUG_PORT", cfg.DebugPort)
	}
	if origins := getEnvList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if rps := getEnvFloat("RATE_LIMIT_RPS", 0); rps > 0 {
		cfg.RequestsPerSecond = rps
	}
	if b := getEnvInt("RATE_LIMIT_BURST", 0); b > 0 {
		cfg.Burst = b
	}
	if c := getEnvInt("MAX_WS_PER_IP", 0); c > 0 {
		cfg.MaxWSConnections = c
	}

	return cfg
}

// =============================================================================
// LEDGER CONFIGURATION
// =============================================================================

// LedgerConfig selects and tunes the balance store.
type LedgerConfig struct {
	Driver      string // "sqlite" or "memory"
	Path        string
	BusyTimeout time.Duration
	MaxRetries  uint64
	RetryBase   time.Duration
}

// DefaultLedger returns the default ledger configuration.
func DefaultLedger() LedgerConfig {
	return LedgerConfig{
		Driver:      "sqlite",
		Path:        "carnival.db",
		BusyTimeout: 5 * time.Second,
		MaxRetries:  5,
		RetryBase:   10 * time.Millisecond,
	}
}

// LedgerFromEnv returns ledger configuration with environment variable overrides.
func LedgerFromEnv() LedgerConfig {
	cfg := DefaultLedger()

	if d := os.Getenv("LEDGER_DRIVER"); d != "" {
		cfg.Driver = d
	}
	if p := os.Getenv("LEDGER_PATH"); p != "" {
		cfg.Path = p
	}
	cfg.BusyTimeout = getEnvDuration("LEDGER_BUSY_TIMEOUT", cfg.BusyTimeout)
	if r := getEnvInt("LEDGER_MAX_RETRIES", -1); r >= 0 {
		cfg.MaxRetries = uint64(r)
	}

	return cfg
}

// =============================================================================
// AUTH CONFIGURATION
// =============================================================================

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	Secret    string
	Issuer    string
	TokenTTL  time.Duration
	DevTokens bool // exposes POST /auth/dev-token
}

// DefaultAuth returns the default auth configuration. The secret is empty
// and must come from the environment.
func DefaultAuth() AuthConfig {
	return AuthConfig{
		Issuer:   "carnival",
		TokenTTL: 24 * time.Hour,
	}
}

// AuthFromEnv returns auth configuration with environment variable overrides.
func AuthFromEnv() AuthConfig {
	cfg := DefaultAuth()

	cfg.Secret = os.Getenv("JWT_SECRET")
	if iss := os.Getenv("JWT_ISSUER"); iss != "" {
		cfg.Issuer = iss
	}
	cfg.TokenTTL = getEnvDuration("JWT_TTL", cfg.TokenTTL)
	cfg.DevTokens = os.Getenv("DEV_TOKENS") == "true"

	return cfg
}

// =============================================================================
// TOURNAMENT CONFIGURATION
// =============================================================================

// TournamentConfig holds bracket money and shape.
type TournamentConfig struct {
	EntryFee decimal.Decimal
	Prize    decimal.Decimal
	Players  int
	Field    string // "always" advances every round, "synthetic" ranks against a drawn field
}

// DefaultTournament returns the default tournament configuration.
func DefaultTournament() TournamentConfig {
	return TournamentConfig{
		EntryFee: decimal.NewFromInt(1),
		Prize:    decimal.NewFromInt(20),
		Players:  32,
		Field:    "always",
	}
}

// TournamentFromEnv returns tournament configuration with environment variable overrides.
func TournamentFromEnv() TournamentConfig {
	cfg := DefaultTournament()

	cfg.EntryFee = getEnvDecimal("TOURNAMENT_ENTRY_FEE", cfg.EntryFee)
	cfg.Prize = getEnvDecimal("TOURNAMENT_PRIZE", cfg.Prize)
	if p := getEnvInt("TOURNAMENT_PLAYERS", 0); p > 0 {
		cfg.Players = p
	}
	if f := os.Getenv("TOURNAMENT_FIELD"); f != "" {
		cfg.Field = f
	}

	return cfg
}

// =============================================================================
// AUDIT CONFIGURATION
// =============================================================================

// AuditConfig holds the match audit log settings.
type AuditConfig struct {
	Path string // empty keeps events in memory only
}

// DefaultAudit returns the default audit configuration.
func DefaultAudit() AuditConfig {
	return AuditConfig{Path: "audit.jsonl"}
}

// AuditFromEnv returns audit configuration with environment variable overrides.
func AuditFromEnv() AuditConfig {
	cfg := DefaultAudit()
	if v, ok := os.LookupEnv("AUDIT_PATH"); ok {
		cfg.Path = v
	}
	return cfg
}

// =============================================================================
// MATCH CONFIGURATION
// =============================================================================

// MatchConfig controls live match drivers.
type MatchConfig struct {
	Frame        time.Duration // driver tick
	PublishEvery int           // frames between WebSocket snapshots
}

// DefaultMatch returns the default match configuration.
func DefaultMatch() MatchConfig {
	return MatchConfig{
		Frame:        16 * time.Millisecond,
		PublishEvery: 3,
	}
}

// MatchFromEnv returns match configuration with environment variable overrides.
func MatchFromEnv() MatchConfig {
	cfg := DefaultMatch()
	cfg.Frame = getEnvDuration("MATCH_FRAME", cfg.Frame)
	if p := getEnvInt("MATCH_PUBLISH_EVERY", 0); p > 0 {
		cfg.PublishEvery = p
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server     ServerConfig
	Ledger     LedgerConfig
	Auth       AuthConfig
	Tournament TournamentConfig
	Audit      AuditConfig
	Match      MatchConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:     ServerFromEnv(),
		Ledger:     LedgerFromEnv(),
		Auth:       AuthFromEnv(),
		Tournament: TournamentFromEnv(),
		Audit:      AuditFromEnv(),
		Match:      MatchFromEnv(),
	}
}

// Validate reports every invalid setting at once.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Server.Port))
	}
	if c.Server.DebugPort == c.Server.Port {
		errs = append(errs, fmt.Errorf("DEBUG_PORT must differ from PORT"))
	}
	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("LEDGER_PATH is required for sqlite"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_DRIVER %q", c.Ledger.Driver))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.Tournament.EntryFee.IsNegative() || !c.Tournament.Prize.IsPositive() {
		errs = append(errs, errors.New("tournament entry fee must be >= 0 and prize > 0"))
	}
	switch c.Tournament.Field {
	case "always", "synthetic":
	default:
		errs = append(errs, fmt.Errorf("unknown TOURNAMENT_FIELD %q", c.Tournament.Field))
	}
	if c.Match.Frame <= 0 {
		errs = append(errs, errors.New("MATCH_FRAME must be positive"))
	}
	return errors.Join(errs...)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
