package game

import (
	"math"
	"testing"
	"time"

	"carnival/internal/clock"
)

func startedRace(t *testing.T, seed int64) (*clock.Scheduler, *TurboRace) {
	t.Helper()
	s := clock.NewScheduler()
	g := NewTurboRace(s, seed, nil)
	g.Start()
	s.Advance(countdown)
	if !g.playing() || g.boost != BoostReady {
		t.Fatalf("expected a ready racer, got boost %s", g.boost)
	}
	return s, g
}

// promptNow forces a boost prompt on the next frame.
func promptNow(t *testing.T, s *clock.Scheduler, g *TurboRace) {
	t.Helper()
	g.nextBoostAt = s.Now()
	s.Advance(clock.FrameTick)
	if g.boost != BoostPrompt {
		t.Fatalf("boost = %s, want prompt", g.boost)
	}
}

func TestRaceBoostDelay(t *testing.T) {
	for seed := int64(0); seed < 40; seed++ {
		s, g := startedRace(t, seed)
		delay := g.nextBoostAt - s.Now()
		if delay < 1800*time.Millisecond || delay > 3200*time.Millisecond {
			t.Errorf("seed %d: first prompt after %v", seed, delay)
		}
	}
}

// TestRaceBoosts verifies tap timing decides the boost strength
func TestRaceBoosts(t *testing.T) {
	tests := []struct {
		name      string
		wait      time.Duration
		wantSpeed float64
		wantFor   time.Duration
		perfect   int
	}{
		{"perfect", 0, racePerfectSpeed, racePerfectTime, 1},
		{"just perfect", 299 * time.Millisecond, racePerfectSpeed, racePerfectTime, 1},
		{"late", 400 * time.Millisecond, raceBoostSpeed, raceBoostTime, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, g := startedRace(t, 42)
			promptNow(t, s, g)
			s.Advance(tt.wait)

			if !g.Apply(Action{Kind: ActionBoost}) {
				t.Fatal("boost rejected")
			}
			if g.speed != tt.wantSpeed || g.boost != BoostActive {
				t.Fatalf("speed=%v boost=%s", g.speed, g.boost)
			}
			if g.boostsHit != 1 || g.perfectHits != tt.perfect || g.streak != 1 {
				t.Errorf("hits=%d perfect=%d streak=%d", g.boostsHit, g.perfectHits, g.streak)
			}
			if g.Apply(Action{Kind: ActionBoost}) {
				t.Error("tap accepted while boosting")
			}

			s.Advance(tt.wantFor)
			if g.boost != BoostCooldown || g.speed != raceBaseSpeed {
				t.Fatalf("after boost: %s at %v", g.boost, g.speed)
			}
			s.Advance(raceCooldown)
			if g.boost != BoostReady {
				t.Errorf("after cooldown: %s", g.boost)
			}
			if g.missed != 0 {
				t.Errorf("stale prompt expiry counted a miss")
			}
		})
	}
}

// TestRaceEarlyTap verifies a tap with no prompt slows the racer for 500ms
func TestRaceEarlyTap(t *testing.T) {
	s, g := startedRace(t, 42)
	g.streak = 4

	if !g.Apply(Action{Kind: ActionBoost}) {
		t.Fatal("early tap rejected")
	}
	if g.boost != BoostPenalty || g.speed != racePenaltySpeed || g.streak != 0 {
		t.Fatalf("boost=%s speed=%v streak=%d", g.boost, g.speed, g.streak)
	}
	if g.Apply(Action{Kind: ActionBoost}) {
		t.Error("tap accepted during penalty")
	}

	s.Advance(racePenaltyTime)
	if g.boost != BoostReady || g.speed != raceBaseSpeed {
		t.Errorf("after penalty: %s at %v", g.boost, g.speed)
	}
}

// TestRaceTapDuringCooldown verifies the penalty replaces the pending
// cooldown instead of racing it
func TestRaceTapDuringCooldown(t *testing.T) {
	s, g := startedRace(t, 42)
	promptNow(t, s, g)
	g.Apply(Action{Kind: ActionBoost})
	s.Advance(racePerfectTime)

	g.Apply(Action{Kind: ActionBoost})
	if g.boost != BoostPenalty {
		t.Fatalf("boost = %s, want penalty", g.boost)
	}
	s.Advance(raceCooldown)
	if g.boost != BoostPenalty {
		t.Errorf("cancelled cooldown still fired: %s", g.boost)
	}
	s.Advance(racePenaltyTime - raceCooldown)
	if g.boost != BoostReady {
		t.Errorf("boost = %s after penalty", g.boost)
	}
}

// TestRacePromptExpires verifies an unanswered prompt counts as missed
func TestRacePromptExpires(t *testing.T) {
	s, g := startedRace(t, 42)
	promptNow(t, s, g)
	g.streak = 2

	s.Advance(racePromptWindow - time.Millisecond)
	if g.boost != BoostPrompt {
		t.Fatalf("prompt expired early")
	}
	s.Advance(time.Millisecond)
	if g.boost != BoostReady || g.missed != 1 || g.streak != 0 {
		t.Errorf("boost=%s missed=%d streak=%d", g.boost, g.missed, g.streak)
	}
}

func TestRaceFinalScore(t *testing.T) {
	g := &TurboRace{session: session{tiers: raceTiers}}
	g.finishedAt = 45008 * time.Millisecond
	g.boostsHit = 3
	g.perfectHits = 1
	g.streak = 3

	// floor((60 - 45.01) * 50) = 749, plus 120 + 60 + 150, doubled
	if got := g.finalScore(); got != 2158 {
		t.Errorf("finalScore = %d, want 2158", got)
	}

	g.finishedAt = 75 * time.Second
	g.boostsHit, g.perfectHits, g.streak = 0, 0, 0
	if got := g.finalScore(); got != 0 {
		t.Errorf("slow finish scored %d", got)
	}
}

// TestRaceNoInput verifies an idle racer crosses the line at base speed and
// settles 2.5 seconds later
func TestRaceNoInput(t *testing.T) {
	s := clock.NewScheduler()
	var got []int
	g := NewTurboRace(s, 42, func(score int) { got = append(got, score) })
	g.Start()

	s.Advance(countdown + 47072*time.Millisecond - time.Millisecond)
	if g.finished {
		t.Fatalf("finished early at %v", g.clock.Elapsed())
	}
	s.Advance(time.Millisecond)
	if !g.finished || g.finishedAt != 47072*time.Millisecond {
		t.Fatalf("finished=%v at %v", g.finished, g.finishedAt)
	}
	if g.lap != raceLaps || g.position != raceTrackLength*raceLaps {
		t.Errorf("lap=%d position=%v", g.lap, g.position)
	}

	s.Advance(raceSettleDelay)
	if len(got) != 1 || got[0] != 646 {
		t.Errorf("completion scores = %v, want [646]", got)
	}
}

func TestTrackPosition(t *testing.T) {
	x, y, rot := TrackPosition(0)
	if math.Abs(x-170) > 1e-9 || math.Abs(y-40) > 1e-9 || math.Abs(rot) > 1e-9 {
		t.Errorf("start = (%v, %v, %v)", x, y, rot)
	}
	x, y, _ = TrackPosition(raceTrackLength / 4)
	if math.Abs(x-290) > 1e-9 || math.Abs(y-130) > 1e-9 {
		t.Errorf("quarter = (%v, %v)", x, y)
	}
	x2, y2, _ := TrackPosition(raceTrackLength + raceTrackLength/4)
	if x2 != x || y2 != y {
		t.Error("laps do not wrap")
	}
}
