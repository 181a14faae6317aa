package game

import (
	"testing"
	"time"

	"carnival/internal/clock"
)

func startedWhack(t *testing.T, seed int64) (*clock.Scheduler, *WhackAMole) {
	t.Helper()
	s := clock.NewScheduler()
	g := NewWhackAMole(s, seed, nil)
	g.Start()
	s.Advance(countdown)
	if !g.playing() {
		t.Fatal("expected playing after countdown")
	}
	return s, g
}

// TestWhackSeed42FirstHit verifies a normal mole hit with no combo and x1 is worth 100
func TestWhackSeed42FirstHit(t *testing.T) {
	_, g := startedWhack(t, 42)

	m := g.cells[5]
	if m == nil || m.Type != MoleNormal {
		t.Fatalf("expected a normal mole in cell 5, got %+v", m)
	}
	if m.Lifetime != 1312*time.Millisecond {
		t.Errorf("lifetime = %v, want 1.312s", m.Lifetime)
	}

	if !g.Apply(Action{Kind: ActionWhack, Target: 5}) {
		t.Fatal("hit was not accepted")
	}
	if g.Score() != 100 {
		t.Errorf("score = %d, want 100", g.Score())
	}
	if g.streak != 1 || g.cells[5] != nil {
		t.Errorf("streak=%d cell=%v after hit", g.streak, g.cells[5])
	}
	if g.Apply(Action{Kind: ActionWhack, Target: 5}) {
		t.Error("empty cell hit was accepted")
	}
}

// TestWhackMoleScoring verifies rewards and penalties per mole type
func TestWhackMoleScoring(t *testing.T) {
	tests := []struct {
		name       string
		kind       MoleType
		streak     int
		score      int
		combo      int
		wantScore  int
		wantStreak int
	}{
		{"normal", MoleNormal, 0, 0, 0, 100, 1},
		{"normal combo", MoleNormal, 0, 0, 100, 125, 1},
		{"normal x2", MoleNormal, 5, 0, 0, 200, 6},
		{"golden x3", MoleGolden, 10, 0, 0, 900, 11},
		{"speed x4", MoleSpeed, 15, 0, 0, 600, 16},
		{"bomb", MoleBomb, 7, 500, 0, 350, 0},
		{"bomb floors", MoleBomb, 2, 100, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, g := startedWhack(t, 1)
			g.cells = [whackCells]*Mole{}
			g.cells[4] = &Mole{ID: 999, Type: tt.kind, Cell: 4}
			g.streak = tt.streak
			g.score = tt.score
			g.comboTimer = tt.combo

			g.Apply(Action{Kind: ActionWhack, Target: 4})

			if g.Score() != tt.wantScore {
				t.Errorf("score = %d, want %d", g.Score(), tt.wantScore)
			}
			if g.streak != tt.wantStreak {
				t.Errorf("streak = %d, want %d", g.streak, tt.wantStreak)
			}
		})
	}
}

// TestWhackComboWindow verifies the combo bonus only applies inside 100ms
func TestWhackComboWindow(t *testing.T) {
	s, g := startedWhack(t, 3)
	g.cells = [whackCells]*Mole{}
	g.cells[0] = &Mole{ID: 900, Type: MoleNormal}
	g.cells[1] = &Mole{ID: 901, Type: MoleNormal}
	g.cells[2] = &Mole{ID: 902, Type: MoleNormal}

	g.Apply(Action{Kind: ActionWhack, Target: 0})
	g.Apply(Action{Kind: ActionWhack, Target: 1})
	if g.Score() != 225 {
		t.Fatalf("score after combo = %d, want 225", g.Score())
	}

	s.Advance(200 * time.Millisecond)
	if g.comboTimer != 0 {
		t.Fatalf("combo timer = %d after 200ms", g.comboTimer)
	}
	g.cells[2] = &Mole{ID: 902, Type: MoleNormal}
	g.Apply(Action{Kind: ActionWhack, Target: 2})
	if g.Score() != 325 {
		t.Errorf("score without combo = %d, want 325", g.Score())
	}
}

// TestWhackExpiry verifies unclaimed moles break the streak unless they are bombs
func TestWhackExpiry(t *testing.T) {
	tests := []struct {
		kind       MoleType
		wantStreak int
	}{
		{MoleNormal, 0},
		{MoleGolden, 0},
		{MoleSpeed, 0},
		{MoleBomb, 4},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			_, g := startedWhack(t, 9)
			g.cells[8] = &Mole{ID: 777, Type: tt.kind, Cell: 8}
			g.streak = 4

			g.step(whackEvent{kind: whackExpire, cell: 8, mole: 777})

			if g.streak != tt.wantStreak {
				t.Errorf("streak = %d, want %d", g.streak, tt.wantStreak)
			}
			if g.cells[8] != nil {
				t.Error("expired mole still in cell")
			}
		})
	}
}

// TestWhackStaleExpiry verifies an old expiry cannot clear a newer mole
func TestWhackStaleExpiry(t *testing.T) {
	_, g := startedWhack(t, 9)
	g.cells[3] = &Mole{ID: 50, Type: MoleNormal, Cell: 3}
	g.streak = 2

	if g.step(whackEvent{kind: whackExpire, cell: 3, mole: 49}) {
		t.Error("stale expiry was applied")
	}
	if g.cells[3] == nil || g.streak != 2 {
		t.Error("stale expiry mutated state")
	}
}

// TestWhackSpawnsOnlyIntoEmptyCells verifies spawns never overwrite a live mole
func TestWhackSpawnsOnlyIntoEmptyCells(t *testing.T) {
	s, g := startedWhack(t, 2024)
	seen := map[uint64]int{}
	for i := 0; i < 400; i++ {
		s.Advance(50 * time.Millisecond)
		for cell, m := range g.cells {
			if m == nil {
				continue
			}
			if prev, ok := seen[m.ID]; ok && prev != cell {
				t.Fatalf("mole %d moved from %d to %d", m.ID, prev, cell)
			}
			seen[m.ID] = cell
		}
	}
	if len(seen) < 10 {
		t.Errorf("only %d moles spawned in 20s", len(seen))
	}
}

// TestWhackEndsAfter45Seconds verifies the round length and settle delay
func TestWhackEndsAfter45Seconds(t *testing.T) {
	s := clock.NewScheduler()
	final := -1
	g := NewWhackAMole(s, 5, func(score int) { final = score })
	g.Start()

	s.Advance(countdown + 45*time.Second - time.Millisecond)
	if g.clock.Phase() != clock.PhasePlaying {
		t.Fatal("round ended early")
	}
	s.Advance(time.Millisecond)
	if g.clock.Phase() != clock.PhaseEnded {
		t.Fatal("round did not end at 45s")
	}
	for _, m := range g.cells {
		if m != nil && g.Apply(Action{Kind: ActionWhack, Target: m.Cell}) {
			t.Fatal("hit accepted after end")
		}
	}
	s.Advance(clock.DefaultSettleDelay)
	if final != 0 || !g.Done() {
		t.Errorf("final = %d done = %v", final, g.Done())
	}
}
