package tournament

import (
	"fmt"

	"carnival/internal/game"
	"carnival/internal/rng"
)

// Round is the outcome of one played round, as seen by an Advancer.
type Round struct {
	UserID   string
	Seed     int64
	Round    int
	Players  int
	Game     game.ID
	GameSeed int64
	Score    int
}

// Result is an Advancer's verdict.
type Result struct {
	Advances  bool
	Rank      int
	Standings []game.Standing
}

// Advancer decides who moves on after a round.
type Advancer interface {
	Advance(r Round) Result
}

// AlwaysAdvance ranks the player first every round.
type AlwaysAdvance struct{}

func (AlwaysAdvance) Advance(Round) Result {
	return Result{Advances: true, Rank: 1}
}

// DefaultPar is the typical score for each game, used to draw the synthetic
// field.
var DefaultPar = map[game.ID]int{
	game.WhackAMoleID:    1500,
	game.TargetShooterID: 1200,
	game.OrbBurstID:      700,
	game.MemoryPathID:    1400,
	game.TurboRaceID:     1000,
}

// SyntheticField ranks the player against opponents whose scores are drawn
// from the round's game seed, so a bracket replays identically. The top
// half advances.
type SyntheticField struct {
	Par     map[game.ID]int
	Visible int // standings returned around the player
}

// NewSyntheticField creates a field with DefaultPar.
func NewSyntheticField() *SyntheticField {
	return &SyntheticField{Par: DefaultPar, Visible: 3}
}

func (f *SyntheticField) Advance(r Round) Result {
	par := f.Par[r.Game]
	if par <= 0 {
		par = 1000
	}

	board := game.NewLeaderboard()
	board.Submit(r.UserID, r.Score)
	draw := rng.New(r.GameSeed)
	for i := 1; i < r.Players; i++ {
		board.Submit(fmt.Sprintf("rival-%02d", i), draw.NextInt(0, 2*par))
	}

	rank := board.Rank(r.UserID)
	return Result{
		Advances:  rank <= r.Players/2,
		Rank:      rank,
		Standings: board.Around(r.UserID, f.Visible, f.Visible),
	}
}
