package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validConfig() AppConfig {
	cfg := AppConfig{
		Server:     DefaultServer(),
		Ledger:     DefaultLedger(),
		Auth:       DefaultAuth(),
		Tournament: DefaultTournament(),
		Audit:      DefaultAudit(),
		Match:      DefaultMatch(),
	}
	cfg.Auth.Secret = "test-secret"
	return cfg
}

func TestDefaultsValidateWithSecret(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := (AppConfig{Server: DefaultServer(), Ledger: DefaultLedger(), Auth: DefaultAuth(),
		Tournament: DefaultTournament(), Match: DefaultMatch()}).Validate(); err == nil ||
		!strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("missing secret: err = %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("LEDGER_MAX_RETRIES", "0")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("DEV_TOKENS", "true")
	t.Setenv("TOURNAMENT_ENTRY_FEE", "2.50")
	t.Setenv("TOURNAMENT_PLAYERS", "8")
	t.Setenv("TOURNAMENT_FIELD", "synthetic")
	t.Setenv("AUDIT_PATH", "")
	t.Setenv("MATCH_FRAME", "20ms")

	cfg := Load()
	if cfg.Server.Port != 8080 || cfg.Server.RequestsPerSecond != 2.5 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %q", cfg.Server.CORSOrigins)
	}
	if cfg.Ledger.Driver != "memory" || cfg.Ledger.MaxRetries != 0 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Auth.Secret != "s3cret" || cfg.Auth.TokenTTL != 90*time.Minute || !cfg.Auth.DevTokens {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if !cfg.Tournament.EntryFee.Equal(decimal.RequireFromString("2.5")) || cfg.Tournament.Players != 8 {
		t.Errorf("tournament = %+v", cfg.Tournament)
	}
	if cfg.Audit.Path != "" {
		t.Errorf("AUDIT_PATH set empty should disable the file, got %q", cfg.Audit.Path)
	}
	if cfg.Match.Frame != 20*time.Millisecond {
		t.Errorf("frame = %v", cfg.Match.Frame)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestMalformedEnvKeepsDefaults(t *testing.T) {
	t.Setenv("PORT", "abc")
	t.Setenv("JWT_TTL", "soon")
	t.Setenv("TOURNAMENT_PRIZE", "lots")

	cfg := Load()
	if cfg.Server.Port != DefaultServer().Port {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Auth.TokenTTL != DefaultAuth().TokenTTL {
		t.Errorf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if !cfg.Tournament.Prize.Equal(DefaultTournament().Prize) {
		t.Errorf("Prize = %v", cfg.Tournament.Prize)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"port", func(c *AppConfig) { c.Server.Port = 70000 }, "PORT"},
		{"debug port clash", func(c *AppConfig) { c.Server.DebugPort = c.Server.Port }, "DEBUG_PORT"},
		{"driver", func(c *AppConfig) { c.Ledger.Driver = "postgres" }, "LEDGER_DRIVER"},
		{"sqlite path", func(c *AppConfig) { c.Ledger.Path = "" }, "LEDGER_PATH"},
		{"ttl", func(c *AppConfig) { c.Auth.TokenTTL = 0 }, "JWT_TTL"},
		{"prize", func(c *AppConfig) { c.Tournament.Prize = decimal.Zero }, "prize"},
		{"field", func(c *AppConfig) { c.Tournament.Field = "bots" }, "TOURNAMENT_FIELD"},
		{"frame", func(c *AppConfig) { c.Match.Frame = 0 }, "MATCH_FRAME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
