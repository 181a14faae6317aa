// Package practice runs unpaid games and remembers each game's last result.
package practice

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"carnival/internal/game"
)

// MaxSeed bounds randomly chosen practice seeds.
const MaxSeed = 1_000_000

// Result is a finished practice game.
type Result struct {
	Game     game.ID   `json:"game"`
	Seed     int64     `json:"seed"`
	Score    int       `json:"score"`
	Finished time.Time `json:"finished"`
}

// Runner starts practice matches for one user. It never touches the ledger.
type Runner struct {
	reg *game.Registry

	mu   sync.Mutex
	last map[game.ID]Result

	// OnResult, if set, is called after each finished game.
	OnResult func(Result)

	randomSeed func() int64
	now        func() time.Time
}

// NewRunner creates a runner over reg.
func NewRunner(reg *game.Registry) *Runner {
	return &Runner{
		reg:        reg,
		last:       make(map[game.ID]Result),
		randomSeed: func() int64 { return rand.Int64N(MaxSeed) },
		now:        time.Now,
	}
}

// Start builds a practice match. A nil seed picks one at random.
func (r *Runner) Start(matchID, userID string, id game.ID, seed *int64) (*game.Match, error) {
	s := r.randomSeed()
	if seed != nil {
		s = *seed
	}
	return game.NewMatch(r.reg, matchID, userID, id, s, game.ModePractice, func(score int) {
		r.record(Result{Game: id, Seed: s, Score: score, Finished: r.now().UTC()})
	})
}

func (r *Runner) record(res Result) {
	r.mu.Lock()
	r.last[res.Game] = res
	r.mu.Unlock()

	if r.OnResult != nil {
		r.OnResult(res)
	}
}

// Last returns the most recent result for a game.
func (r *Runner) Last(id game.ID) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.last[id]
	return res, ok
}

// Results returns the last result of every game played, by game ID.
func (r *Runner) Results() []Result {
	r.mu.Lock()
	out := make([]Result, 0, len(r.last))
	for _, res := range r.last {
		out = append(out, res)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })
	return out
}
