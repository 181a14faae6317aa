package game

import (
	"errors"
	"fmt"
	"time"

	"carnival/internal/clock"
)

// ErrReplayIncomplete is returned when a recording does not reach completion.
var ErrReplayIncomplete = errors.New("replay did not complete")

// replayLimit bounds how much virtual time a replay may consume after the
// last recorded input.
const replayLimit = 10 * time.Minute

// RecordedInput is a player input stamped with the virtual time it landed.
type RecordedInput struct {
	AtMs   int64  `json:"atMs"`
	Action Action `json:"action"`
}

// Recording is everything needed to reproduce a match: the game, the seed and
// the accepted inputs in order.
type Recording struct {
	MatchID string          `json:"matchId"`
	UserID  string          `json:"userId,omitempty"`
	Game    ID              `json:"game"`
	Seed    int64           `json:"seed"`
	Mode    Mode            `json:"mode"`
	Inputs  []RecordedInput `json:"inputs"`
	Score   int             `json:"score"`
	Done    bool            `json:"done"`
}

// Match binds an engine to its own scheduler and records its inputs. A match
// is single-threaded; Driver adds locking for real-time use.
type Match struct {
	sched  *clock.Scheduler
	engine Engine
	rec    Recording
	carry  time.Duration // sub-millisecond time not yet applied
}

// NewMatch builds a match for game. onComplete receives the final score once.
func NewMatch(reg *Registry, matchID, userID string, game ID, seed int64, mode Mode, onComplete func(score int)) (*Match, error) {
	sched := clock.NewScheduler()
	m := &Match{
		sched: sched,
		rec: Recording{
			MatchID: matchID,
			UserID:  userID,
			Game:    game,
			Seed:    seed,
			Mode:    mode,
		},
	}
	engine, err := reg.NewEngine(game, sched, seed, func(score int) {
		m.rec.Score = score
		m.rec.Done = true
		if onComplete != nil {
			onComplete(score)
		}
	})
	if err != nil {
		return nil, err
	}
	m.engine = engine
	return m, nil
}

// ID returns the match ID.
func (m *Match) ID() string { return m.rec.MatchID }

// Game returns the game being played.
func (m *Match) Game() ID { return m.rec.Game }

// Mode returns the match mode.
func (m *Match) Mode() Mode { return m.rec.Mode }

// Start begins the countdown.
func (m *Match) Start() { m.engine.Start() }

// Advance moves the match's virtual clock forward in whole milliseconds,
// carrying the remainder into the next call. Inputs therefore land on the
// same millisecond grid Replay uses.
func (m *Match) Advance(d time.Duration) {
	m.carry += d
	whole := m.carry.Truncate(time.Millisecond)
	m.carry -= whole
	if whole > 0 {
		m.sched.Advance(whole)
	}
}

// Now returns the match's virtual time.
func (m *Match) Now() time.Duration { return m.sched.Now() }

// Apply feeds a player input and records it if the engine accepted it.
func (m *Match) Apply(a Action) (bool, error) {
	if m.engine.Done() {
		return false, ErrMatchOver
	}
	ok := m.engine.Apply(a)
	if ok {
		m.rec.Inputs = append(m.rec.Inputs, RecordedInput{
			AtMs:   int64(m.sched.Now() / time.Millisecond),
			Action: a,
		})
	}
	return ok, nil
}

// Done reports whether the final score was delivered.
func (m *Match) Done() bool { return m.engine.Done() }

// Score returns the current score.
func (m *Match) Score() int { return m.engine.Score() }

// Snapshot returns the engine view.
func (m *Match) Snapshot() Snapshot { return m.engine.Snapshot() }

// Recording returns a copy of the match record.
func (m *Match) Recording() Recording {
	rec := m.rec
	rec.Inputs = append([]RecordedInput(nil), m.rec.Inputs...)
	return rec
}

// Replay re-runs a recording in virtual time and returns the score it
// produces. Inputs must be in non-decreasing time order.
func Replay(reg *Registry, rec Recording) (int, error) {
	sched := clock.NewScheduler()
	var (
		score int
		done  bool
	)
	engine, err := reg.NewEngine(rec.Game, sched, rec.Seed, func(s int) {
		score = s
		done = true
	})
	if err != nil {
		return 0, err
	}
	engine.Start()

	for i, in := range rec.Inputs {
		at := time.Duration(in.AtMs) * time.Millisecond
		if at < sched.Now() {
			return 0, fmt.Errorf("input %d at %dms is out of order", i, in.AtMs)
		}
		sched.Advance(at - sched.Now())
		engine.Apply(in.Action)
	}

	deadline := sched.Now() + replayLimit
	for !done && sched.Now() < deadline {
		sched.Advance(time.Second)
	}
	if !done {
		return 0, ErrReplayIncomplete
	}
	return score, nil
}

// Verify replays rec and reports whether it reproduces the recorded score.
func Verify(reg *Registry, rec Recording) (bool, int, error) {
	score, err := Replay(reg, rec)
	if err != nil {
		return false, 0, err
	}
	return score == rec.Score, score, nil
}
