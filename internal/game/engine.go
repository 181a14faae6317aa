package game

import (
	"errors"

	"carnival/internal/clock"
	"carnival/internal/rng"
)

var (
	ErrUnknownGame = errors.New("unknown game")
	ErrMatchOver   = errors.New("match is over")
)

// ActionKind names a player input.
type ActionKind string

const (
	ActionWhack ActionKind = "whack" // Target: cell 0-8
	ActionLock  ActionKind = "lock"  // Target: slot 0-4
	ActionPop   ActionKind = "pop"   // Target: orb ID
	ActionTap   ActionKind = "tap"   // Target: tile 0-24
	ActionBoost ActionKind = "boost"
)

// Action is a single player input. Engines ignore kinds they don't handle.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target int        `json:"target"`
}

// Engine is a self-driving mini-game state machine. All timing goes through
// the scheduler it was built with; onComplete fires once with the final score
// after the ended phase settles.
type Engine interface {
	Game() ID
	Seed() int64
	Start()
	// Apply feeds a player input through the engine's reducer. Returns false
	// when the input was ignored.
	Apply(a Action) bool
	Score() int
	Done() bool
	Snapshot() Snapshot
}

// Snapshot is the UI-readable view of an engine.
type Snapshot struct {
	Game       ID     `json:"game"`
	Seed       int64  `json:"seed"`
	Phase      string `json:"phase"`
	Countdown  int    `json:"countdown"`
	TimeLeft   int    `json:"timeLeft"`
	Score      int    `json:"score"`
	Streak     int    `json:"streak"`
	Multiplier int    `json:"multiplier"`
	Done       bool   `json:"done"`
	Detail     any    `json:"detail,omitempty"`
}

// tier maps a minimum streak to a multiplier. Tables are ordered high to low.
type tier struct {
	streak int
	mult   int
}

func multiplierFor(streak int, tiers []tier) int {
	for _, t := range tiers {
		if streak >= t.streak {
			return t.mult
		}
	}
	return 1
}

// session is the state every engine shares: seed, generator, timers, score
// and streak. It is owned by exactly one engine.
type session struct {
	game       ID
	seed       int64
	rng        *rng.Random
	sched      *clock.Scheduler
	clock      *clock.RoundClock
	tiers      []tier
	score      int
	streak     int
	done       bool
	onComplete func(score int)
}

func newSession(id ID, sched *clock.Scheduler, seed int64, tiers []tier, onComplete func(int)) session {
	return session{
		game:       id,
		seed:       seed,
		rng:        rng.New(seed),
		sched:      sched,
		tiers:      tiers,
		onComplete: onComplete,
	}
}

// finish reports the final score exactly once.
func (s *session) finish(score int) {
	if s.done {
		return
	}
	s.done = true
	s.score = score
	if s.onComplete != nil {
		s.onComplete(score)
	}
}

func (s *session) multiplier() int {
	return multiplierFor(s.streak, s.tiers)
}

// reward adds already-multiplied points and extends the streak.
func (s *session) reward(points int) {
	s.score += points
	s.streak++
}

// penalize subtracts points, floored at zero, and breaks the streak.
func (s *session) penalize(points int) {
	s.score -= points
	if s.score < 0 {
		s.score = 0
	}
	s.streak = 0
}

func (s *session) playing() bool {
	return s.clock != nil && s.clock.Playing()
}

func (s *session) Game() ID    { return s.game }
func (s *session) Seed() int64 { return s.seed }
func (s *session) Score() int  { return s.score }
func (s *session) Done() bool  { return s.done }
func (s *session) Start()      { s.clock.Start() }

func (s *session) snapshot(detail any) Snapshot {
	return Snapshot{
		Game:       s.game,
		Seed:       s.seed,
		Phase:      s.clock.Phase().String(),
		Countdown:  s.clock.Countdown(),
		TimeLeft:   s.clock.Remaining(),
		Score:      s.score,
		Streak:     s.streak,
		Multiplier: s.multiplier(),
		Done:       s.done,
		Detail:     detail,
	}
}
