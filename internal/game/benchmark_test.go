package game

import (
	"testing"
	"time"

	"carnival/internal/clock"
)

// =============================================================================
// BENCHMARK SUITE: SIMULATION HOT PATHS
// Run with: go test -bench=. -benchmem ./internal/game/...
// =============================================================================

// -----------------------------------------------------------------------------
// FULL ROUND BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkRound_Whack(b *testing.B)  { benchmarkRound(b, WhackAMoleID) }
func BenchmarkRound_Target(b *testing.B) { benchmarkRound(b, TargetShooterID) }
func BenchmarkRound_Orb(b *testing.B)    { benchmarkRound(b, OrbBurstID) }
func BenchmarkRound_Memory(b *testing.B) { benchmarkRound(b, MemoryPathID) }
func BenchmarkRound_Race(b *testing.B)   { benchmarkRound(b, TurboRaceID) }

// benchmarkRound plays an idle round from countdown to settle.
func benchmarkRound(b *testing.B, id ID) {
	reg := DefaultRegistry()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := clock.NewScheduler()
		e, err := reg.NewEngine(id, s, int64(i), nil)
		if err != nil {
			b.Fatal(err)
		}
		e.Start()
		s.RunUntilIdle(2 * time.Minute)
	}
}

// -----------------------------------------------------------------------------
// SNAPSHOT BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkSnapshot_Orb(b *testing.B) {
	s := clock.NewScheduler()
	g := NewOrbBurst(s, 1, nil)
	g.Start()
	s.Advance(countdown + 13*time.Second)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = g.Snapshot()
	}
}

// -----------------------------------------------------------------------------
// SCHEDULER BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkScheduler_FrameTimers(b *testing.B) {
	s := clock.NewScheduler()
	for i := 0; i < 8; i++ {
		s.Every(clock.FrameTick, func() {})
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s.Advance(clock.FrameTick)
	}
}

func BenchmarkNaturalStop(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NaturalStop(30, 280, 0.994)
	}
}

// -----------------------------------------------------------------------------
// REPLAY BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkReplay_Race(b *testing.B) {
	reg := DefaultRegistry()
	m, err := NewMatch(reg, "bench", "", TurboRaceID, 7, ModePractice, nil)
	if err != nil {
		b.Fatal(err)
	}
	m.Start()
	for !m.Done() {
		m.Advance(16 * time.Millisecond)
		if d, ok := m.Snapshot().Detail.(RaceDetail); ok && d.Boost == BoostPrompt {
			m.Apply(Action{Kind: ActionBoost})
		}
	}
	rec := m.Recording()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Replay(reg, rec); err != nil {
			b.Fatal(err)
		}
	}
}
