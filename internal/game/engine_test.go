package game

import (
	"testing"
	"time"

	"carnival/internal/clock"

	"pgregory.net/rapid"
)

const countdown = clock.DefaultCountdownTicks * clock.DefaultCountdownStep

// fataler is satisfied by both *testing.T and *rapid.T.
type fataler interface {
	Fatalf(format string, args ...any)
}

// runToEnd advances until the engine reports done or the limit passes.
func runToEnd(s *clock.Scheduler, e Engine, limit time.Duration) {
	end := s.Now() + limit
	for !e.Done() && s.Now() < end {
		s.Advance(100 * time.Millisecond)
	}
}

// TestMultiplierTiers verifies each game's streak to multiplier step function
func TestMultiplierTiers(t *testing.T) {
	tests := []struct {
		name   string
		tiers  []tier
		streak int
		want   int
	}{
		{"whack base", whackTiers, 4, 1},
		{"whack x2", whackTiers, 5, 2},
		{"whack x3", whackTiers, 10, 3},
		{"whack x4", whackTiers, 15, 4},
		{"target x2", targetTiers, 3, 2},
		{"target x3", targetTiers, 5, 3},
		{"target x4", targetTiers, 7, 4},
		{"orb x2", orbTiers, 5, 2},
		{"orb x3", orbTiers, 19, 3},
		{"orb x4", orbTiers, 20, 4},
		{"memory x2", memoryTiers, 3, 2},
		{"memory cap", memoryTiers, 50, 3},
		{"race base", raceTiers, 2, 1},
		{"race x3", raceTiers, 5, 3},
		{"reset", whackTiers, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := multiplierFor(tt.streak, tt.tiers); got != tt.want {
				t.Errorf("multiplierFor(%d) = %d, want %d", tt.streak, got, tt.want)
			}
		})
	}
}

// TestEveryGameCompletesOnce verifies each engine reports exactly one
// non-negative score with no player input
func TestEveryGameCompletesOnce(t *testing.T) {
	reg := DefaultRegistry()
	for _, entry := range reg.List() {
		t.Run(string(entry.Info.ID), func(t *testing.T) {
			s := clock.NewScheduler()
			calls := 0
			score := -1
			e := entry.New(s, 1234, func(v int) {
				calls++
				score = v
			})
			e.Start()
			runToEnd(s, e, 3*time.Minute)
			s.Advance(time.Minute)

			if calls != 1 {
				t.Fatalf("onComplete called %d times, want 1", calls)
			}
			if score < 0 {
				t.Errorf("final score %d is negative", score)
			}
			if s.Pending() != 0 {
				t.Errorf("%d timers still pending after completion", s.Pending())
			}
			if e.Apply(Action{Kind: ActionWhack}) {
				t.Error("input accepted after completion")
			}
		})
	}
}

// TestInputIgnoredDuringCountdown verifies no game accepts play before it starts
func TestInputIgnoredDuringCountdown(t *testing.T) {
	reg := DefaultRegistry()
	inputs := []Action{
		{Kind: ActionWhack, Target: 0},
		{Kind: ActionLock, Target: 2},
		{Kind: ActionPop, Target: 0},
		{Kind: ActionTap, Target: 12},
		{Kind: ActionBoost},
	}
	for _, entry := range reg.List() {
		s := clock.NewScheduler()
		e := entry.New(s, 7, nil)
		e.Start()
		s.Advance(countdown - time.Millisecond)
		for _, a := range inputs {
			if e.Apply(a) {
				t.Errorf("%s accepted %s during countdown", entry.Info.ID, a.Kind)
			}
		}
		if snap := e.Snapshot(); snap.Phase != "countdown" {
			t.Errorf("%s phase = %s, want countdown", entry.Info.ID, snap.Phase)
		}
	}
}

// randomPlay drives e with inputs drawn by rapid and checks the score floor
// at every step.
func randomPlay(t *rapid.T, s *clock.Scheduler, e Engine) {
	kinds := []ActionKind{ActionWhack, ActionLock, ActionPop, ActionTap, ActionBoost}
	s.Advance(countdown)
	for i := 0; i < 120 && !e.Done(); i++ {
		s.Advance(time.Duration(rapid.IntRange(0, 700).Draw(t, "gap")) * time.Millisecond)
		a := Action{
			Kind:   rapid.SampledFrom(kinds).Draw(t, "kind"),
			Target: rapid.IntRange(-1, 30).Draw(t, "target"),
		}
		e.Apply(a)
		snap := e.Snapshot()
		if snap.Score < 0 {
			t.Fatalf("score went negative: %d", snap.Score)
		}
		if snap.Streak == 0 && snap.Multiplier != 1 {
			t.Fatalf("multiplier %d with zero streak", snap.Multiplier)
		}
	}
}

// TestScoreNeverNegative checks the score floor under arbitrary input
func TestScoreNeverNegative(t *testing.T) {
	reg := DefaultRegistry()
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.SampledFrom([]ID{WhackAMoleID, TargetShooterID, OrbBurstID, MemoryPathID, TurboRaceID}).Draw(t, "game")
		s := clock.NewScheduler()
		e, err := reg.NewEngine(id, s, rapid.Int64Range(0, 999999).Draw(t, "seed"), nil)
		if err != nil {
			t.Fatal(err)
		}
		e.Start()
		randomPlay(t, s, e)
	})
}

// TestSameSeedSameGame checks two engines fed the same inputs stay identical
func TestSameSeedSameGame(t *testing.T) {
	reg := DefaultRegistry()
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.SampledFrom([]ID{WhackAMoleID, TargetShooterID, OrbBurstID, MemoryPathID, TurboRaceID}).Draw(t, "game")
		seed := rapid.Int64Range(0, 999999).Draw(t, "seed")

		sa, sb := clock.NewScheduler(), clock.NewScheduler()
		a, _ := reg.NewEngine(id, sa, seed, nil)
		b, _ := reg.NewEngine(id, sb, seed, nil)
		a.Start()
		b.Start()
		sa.Advance(countdown)
		sb.Advance(countdown)

		for i := 0; i < 40; i++ {
			gap := time.Duration(rapid.IntRange(0, 900).Draw(t, "gap")) * time.Millisecond
			sa.Advance(gap)
			sb.Advance(gap)
			in := Action{
				Kind:   rapid.SampledFrom([]ActionKind{ActionWhack, ActionLock, ActionPop, ActionTap, ActionBoost}).Draw(t, "kind"),
				Target: rapid.IntRange(0, 24).Draw(t, "target"),
			}
			if a.Apply(in) != b.Apply(in) {
				t.Fatalf("step %d: engines disagreed on input %+v", i, in)
			}
			if a.Score() != b.Score() || a.Snapshot().Streak != b.Snapshot().Streak {
				t.Fatalf("step %d: diverged %d vs %d", i, a.Score(), b.Score())
			}
		}
	})
}

// TestRegistryUnknownGame verifies unknown IDs are rejected
func TestRegistryUnknownGame(t *testing.T) {
	_, err := DefaultRegistry().NewEngine("pinball", clock.NewScheduler(), 1, nil)
	if err == nil {
		t.Fatal("expected error for unknown game")
	}
}

// TestRegistryCatalog verifies every game carries display info and a tutorial
func TestRegistryCatalog(t *testing.T) {
	entries := DefaultRegistry().List()
	if len(entries) != 5 {
		t.Fatalf("expected 5 games, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Info.Name == "" || e.Info.Icon == "" || e.Tutorial.Instruction == "" {
			t.Errorf("%s: incomplete catalog entry %+v", e.Info.ID, e)
		}
		if len(e.Tutorial.Tips) != 3 {
			t.Errorf("%s: expected 3 tips, got %d", e.Info.ID, len(e.Tutorial.Tips))
		}
	}
}

// TestTutorialSet verifies the seen gate
func TestTutorialSet(t *testing.T) {
	ts := NewTutorialSet()
	if ts.Seen(MemoryPathID) {
		t.Fatal("fresh set reports seen")
	}
	ts.MarkSeen(MemoryPathID)
	if !ts.Seen(MemoryPathID) || ts.Seen(TurboRaceID) {
		t.Error("MarkSeen affected the wrong game")
	}
}
