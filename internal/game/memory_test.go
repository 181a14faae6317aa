package game

import (
	"slices"
	"testing"
	"time"

	"carnival/internal/clock"
	"carnival/internal/rng"

	"pgregory.net/rapid"
)

// inputOpens is when the first four tile path accepts taps: four 400ms show
// steps plus the 300ms pause.
const inputOpens = countdown + 1900*time.Millisecond

func startedMemory(t *testing.T, seed int64) (*clock.Scheduler, *MemoryPath) {
	t.Helper()
	s := clock.NewScheduler()
	g := NewMemoryPath(s, seed, nil)
	g.Start()
	s.Advance(countdown)
	if g.phase != MemoryShowing || len(g.path) != 4 {
		t.Fatalf("expected a four tile path showing, got %s/%d", g.phase, len(g.path))
	}
	return s, g
}

// TestMemoryPathShape checks every generated path is a self-avoiding walk
// over adjacent tiles
func TestMemoryPathShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Int64().Draw(rt, "seed")
		length := rapid.IntRange(4, 7).Draw(rt, "length")

		path := generatePath(rng.New(seed), length)

		if len(path) != length {
			rt.Fatalf("length %d, want %d", len(path), length)
		}
		seen := map[int]bool{}
		for i, tile := range path {
			if tile < 0 || tile >= memoryTiles {
				rt.Fatalf("tile %d out of grid", tile)
			}
			if seen[tile] {
				rt.Fatalf("tile %d repeated in %v", tile, path)
			}
			seen[tile] = true
			if i > 0 && !slices.Contains(neighbors(path[i-1]), tile) {
				rt.Fatalf("%d is not adjacent to %d", tile, path[i-1])
			}
		}
	})
}

func TestPathLength(t *testing.T) {
	tests := []struct {
		timeLeft int
		want     int
	}{
		{60, 4}, {46, 4}, {45, 5}, {31, 5}, {30, 6}, {16, 6}, {15, 7}, {0, 7},
	}
	for _, tt := range tests {
		if got := pathLength(tt.timeLeft); got != tt.want {
			t.Errorf("pathLength(%d) = %d, want %d", tt.timeLeft, got, tt.want)
		}
	}
}

func TestNeighborsCorner(t *testing.T) {
	if got := neighbors(0); !slices.Equal(got, []int{5, 1}) {
		t.Errorf("neighbors(0) = %v", got)
	}
	if got := neighbors(12); !slices.Equal(got, []int{7, 17, 11, 13}) {
		t.Errorf("neighbors(12) = %v", got)
	}
}

// TestMemoryShowThenInput verifies taps are ignored until the path has been
// shown, and the path is hidden from snapshots once input opens
func TestMemoryShowThenInput(t *testing.T) {
	s, g := startedMemory(t, 42)

	detail := g.Snapshot().Detail.(MemoryDetail)
	if detail.Highlight != g.path[0] {
		t.Errorf("highlight = %d, want first tile %d", detail.Highlight, g.path[0])
	}
	if g.Apply(Action{Kind: ActionTap, Target: g.path[0]}) {
		t.Fatal("tap accepted while showing")
	}

	s.Advance(inputOpens - countdown - time.Millisecond)
	if g.phase != MemoryShowing {
		t.Fatalf("phase = %s one millisecond before input", g.phase)
	}
	s.Advance(time.Millisecond)
	if g.phase != MemoryInput {
		t.Fatalf("phase = %s, want input", g.phase)
	}

	detail = g.Snapshot().Detail.(MemoryDetail)
	if detail.Highlight != -1 || detail.Revealed != nil {
		t.Errorf("path leaked during input: %+v", detail)
	}
}

// TestMemoryCompletePath verifies per tile points plus the completion and
// speed bonus for a path repeated the moment input opens
func TestMemoryCompletePath(t *testing.T) {
	s, g := startedMemory(t, 42)
	s.Advance(inputOpens - countdown)

	want := 0
	for _, tile := range g.path {
		if tile == g.golden {
			want += 50
		} else {
			want += 10
		}
		if !g.Apply(Action{Kind: ActionTap, Target: tile}) {
			t.Fatalf("tap %d rejected", tile)
		}
	}
	// 4*20 completion plus floor((6 - 1.9) * 20) speed bonus
	want += 80 + 82

	if g.Score() != want {
		t.Errorf("score = %d, want %d", g.Score(), want)
	}
	if g.completed != 1 || g.streak != 1 || g.phase != MemoryComplete {
		t.Errorf("completed=%d streak=%d phase=%s", g.completed, g.streak, g.phase)
	}
	if g.Apply(Action{Kind: ActionTap, Target: g.path[0]}) {
		t.Error("tap accepted after completion")
	}

	s.Advance(memoryNextRound)
	if g.phase != MemoryShowing {
		t.Errorf("phase = %s, want next round showing", g.phase)
	}
}

// TestMemoryWrongTap verifies a wrong tile reveals the path, resets the
// streak and retries after 1.2 seconds
func TestMemoryWrongTap(t *testing.T) {
	s, g := startedMemory(t, 8)
	s.Advance(inputOpens - countdown)
	g.streak = 4

	wrong := (g.path[0] + 12) % memoryTiles
	g.Apply(Action{Kind: ActionTap, Target: wrong})

	if g.phase != MemoryWrong || g.streak != 0 || g.Score() != 0 {
		t.Fatalf("phase=%s streak=%d score=%d", g.phase, g.streak, g.Score())
	}
	detail := g.Snapshot().Detail.(MemoryDetail)
	if !slices.Equal(detail.Revealed, g.path) || detail.WrongTile != wrong {
		t.Errorf("reveal = %v wrong = %d", detail.Revealed, detail.WrongTile)
	}

	s.Advance(memoryRetry - time.Millisecond)
	if g.phase != MemoryWrong {
		t.Fatalf("retried early")
	}
	s.Advance(time.Millisecond)
	if g.phase != MemoryShowing || g.wrongTile != -1 || len(g.clicks) != 0 {
		t.Errorf("phase=%s wrong=%d clicks=%v", g.phase, g.wrongTile, g.clicks)
	}
}

// TestMemoryStreakMultiplier verifies tile points and completion bonus both
// use the multiplier in effect before the round's streak increment
func TestMemoryStreakMultiplier(t *testing.T) {
	s, g := startedMemory(t, 42)
	s.Advance(inputOpens - countdown)
	g.streak = 3

	tiles := 0
	for _, tile := range g.path {
		if tile == g.golden {
			tiles += 50
		} else {
			tiles += 10
		}
		g.Apply(Action{Kind: ActionTap, Target: tile})
	}

	if want := (tiles + 162) * 2; g.Score() != want {
		t.Errorf("score = %d, want %d", g.Score(), want)
	}
}
