// =============================================================================
// CARNIVAL - REPLAY VERIFIER
// =============================================================================
// Re-runs every completed match in an audit log from its seed and recorded
// inputs and checks the final score matches what the server reported.
//
// USAGE:
//
//	go run ./cmd/replay                 # reads AUDIT_PATH (default audit.jsonl)
//	go run ./cmd/replay path/to/audit.jsonl
//
// =============================================================================
package main

import (
	"log"
	"os"
	"runtime"
	"sync/atomic"

	"carnival/internal/config"
	"carnival/internal/game"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	path := config.AuditFromEnv().Path
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		log.Fatal("❌ No audit log: pass a path or set AUDIT_PATH")
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	recs, err := game.ReadRecordings(f)
	f.Close()
	if err != nil {
		log.Fatalf("❌ Reading %s: %v", path, err)
	}
	log.Printf("🔁 Replaying %d matches from %s", len(recs), path)

	reg := game.DefaultRegistry()
	var mismatched, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, rec := range recs {
		g.Go(func() error {
			ok, score, err := game.Verify(reg, rec)
			switch {
			case err != nil:
				failed.Add(1)
				log.Printf("⚠️ %s (%s seed %d): %v", rec.MatchID, rec.Game, rec.Seed, err)
			case !ok:
				mismatched.Add(1)
				log.Printf("❌ %s (%s seed %d): recorded %d, replayed %d",
					rec.MatchID, rec.Game, rec.Seed, rec.Score, score)
			}
			return nil
		})
	}
	g.Wait()

	bad := mismatched.Load() + failed.Load()
	log.Printf("✅ %d verified, ❌ %d mismatched, ⚠️ %d failed", int64(len(recs))-bad, mismatched.Load(), failed.Load())
	if bad > 0 {
		os.Exit(1)
	}
}
