package game

import (
	"math"
	"time"

	"carnival/internal/clock"
)

const (
	raceLaps         = 4
	raceTrackLength  = 1000.0
	raceBaseSpeed    = 85.0
	raceBoostSpeed   = 160.0
	racePerfectSpeed = 200.0
	racePenaltySpeed = 50.0
	raceBoostTime    = 800 * time.Millisecond
	racePerfectTime  = 1000 * time.Millisecond
	raceCooldown     = 400 * time.Millisecond
	racePenaltyTime  = 500 * time.Millisecond
	racePromptWindow = 1200 * time.Millisecond
	racePerfectWin   = 300 * time.Millisecond
	raceSettleDelay  = 2500 * time.Millisecond
	raceParSeconds   = 60.0
)

// BoostState is the boost prompt state machine.
type BoostState string

const (
	BoostReady    BoostState = "ready"
	BoostPrompt   BoostState = "prompt"
	BoostActive   BoostState = "boosting"
	BoostCooldown BoostState = "cooldown"
	BoostPenalty  BoostState = "penalty"
)

var raceTiers = []tier{{5, 3}, {3, 2}}

// RaceDetail is the game-specific part of a TurboRace snapshot.
type RaceDetail struct {
	Position     float64    `json:"position"`
	Lap          int        `json:"lap"`
	Boost        BoostState `json:"boost"`
	Speed        float64    `json:"speed"`
	Perfect      bool       `json:"perfect"`
	BoostsHit    int        `json:"boostsHit"`
	PerfectHits  int        `json:"perfectBoosts"`
	BoostsMissed int        `json:"boostsMissed"`
	RaceTimeMs   int64      `json:"raceTimeMs"`
	FinishTimeMs int64      `json:"finishTimeMs,omitempty"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Rotation     float64    `json:"rotation"`
}

type raceEventKind uint8

const (
	raceFrame raceEventKind = iota
	raceTap
	racePromptExpired
	raceBoostOver
	raceReady
)

type raceEvent struct {
	kind   raceEventKind
	prompt int
}

// TurboRace: a four lap race where boost prompts appear at random intervals.
// Fast taps speed the racer up, early taps slow it down.
type TurboRace struct {
	session
	position    float64
	lap         int
	boost       BoostState
	speed       float64
	perfect     bool
	promptAt    time.Duration
	promptSeq   int
	nextBoostAt time.Duration
	pending     clock.TimerID
	boostsHit   int
	perfectHits int
	missed      int
	finishedAt  time.Duration
	finished    bool
}

// NewTurboRace creates a race. It has no time limit and settles 2.5s after
// the finish line.
func NewTurboRace(sched *clock.Scheduler, seed int64, onComplete func(int)) *TurboRace {
	g := &TurboRace{
		session: newSession(TurboRaceID, sched, seed, raceTiers, onComplete),
		lap:     1,
		boost:   BoostReady,
		speed:   raceBaseSpeed,
	}
	g.clock = clock.NewRoundClock(sched, clock.RoundConfig{
		CountdownTicks: clock.DefaultCountdownTicks,
		Tick:           clock.FrameTick,
		SettleDelay:    raceSettleDelay,
	}, clock.Hooks{
		OnStart:   g.scheduleNextBoost,
		OnTick:    func() { g.step(raceEvent{kind: raceFrame}) },
		OnSettled: func() { g.finish(g.score) },
	})
	return g
}

// Apply handles ActionBoost.
func (g *TurboRace) Apply(a Action) bool {
	if a.Kind != ActionBoost {
		return false
	}
	return g.step(raceEvent{kind: raceTap})
}

func (g *TurboRace) scheduleNextBoost() {
	delay := g.rng.NextInt(1800, 3200)
	g.nextBoostAt = g.sched.Now() + time.Duration(delay)*time.Millisecond
}

func (g *TurboRace) step(ev raceEvent) bool {
	if !g.playing() {
		return false
	}
	switch ev.kind {
	case raceFrame:
		g.frame()
	case raceTap:
		return g.tap()
	case racePromptExpired:
		if g.boost != BoostPrompt || ev.prompt != g.promptSeq {
			return false
		}
		g.missed++
		g.streak = 0
		g.boost = BoostReady
		g.scheduleNextBoost()
	case raceBoostOver:
		g.speed = raceBaseSpeed
		g.perfect = false
		g.boost = BoostCooldown
		g.pending = g.sched.After(raceCooldown, func() { g.step(raceEvent{kind: raceReady}) })
	case raceReady:
		g.speed = raceBaseSpeed
		g.boost = BoostReady
		g.scheduleNextBoost()
	}
	return true
}

func (g *TurboRace) frame() {
	now := g.sched.Now()
	if g.boost == BoostReady && now >= g.nextBoostAt {
		g.boost = BoostPrompt
		g.promptAt = now
		g.promptSeq++
		seq := g.promptSeq
		g.sched.After(racePromptWindow, func() {
			g.step(raceEvent{kind: racePromptExpired, prompt: seq})
		})
	}

	const total = raceTrackLength * raceLaps
	g.position += g.speed * clock.FrameTick.Seconds()
	g.lap = min(raceLaps, int(math.Floor(g.position/raceTrackLength))+1)
	if g.position >= total {
		g.position = total
		g.finishedAt = g.clock.Elapsed()
		g.finished = true
		g.score = g.finalScore()
		g.clock.Finish()
	}
}

func (g *TurboRace) tap() bool {
	switch g.boost {
	case BoostPrompt:
		perfect := g.sched.Now()-g.promptAt < racePerfectWin
		g.boost = BoostActive
		g.boostsHit++
		g.streak++
		g.perfect = perfect
		d := raceBoostTime
		g.speed = raceBoostSpeed
		if perfect {
			g.perfectHits++
			g.speed = racePerfectSpeed
			d = racePerfectTime
		}
		g.pending = g.sched.After(d, func() { g.step(raceEvent{kind: raceBoostOver}) })
		return true
	case BoostReady, BoostCooldown:
		g.sched.Cancel(g.pending)
		g.boost = BoostPenalty
		g.streak = 0
		g.speed = racePenaltySpeed
		g.pending = g.sched.After(racePenaltyTime, func() { g.step(raceEvent{kind: raceReady}) })
		return true
	}
	return false
}

// finalScore rewards a fast finish, landed boosts and a live streak. The
// finish time is rounded to hundredths of a second before scoring.
func (g *TurboRace) finalScore() int {
	centis := (int64(g.finishedAt/time.Millisecond) + 5) / 10
	secs := float64(centis) / 100
	base := max(0, int(math.Floor((raceParSeconds-secs)*50)))

	streakBonus := 0
	switch {
	case g.streak >= 5:
		streakBonus = 300
	case g.streak >= 3:
		streakBonus = 150
	}
	return (base + g.boostsHit*40 + g.perfectHits*60 + streakBonus) * g.multiplier()
}

// TrackPosition maps a distance along the track to the elliptical course.
func TrackPosition(position float64) (x, y, rotation float64) {
	progress := math.Mod(position, raceTrackLength) / raceTrackLength
	angle := progress*2*math.Pi - math.Pi/2
	x = 170 + 120*math.Cos(angle)
	y = 130 + 90*math.Sin(angle)
	return x, y, angle + math.Pi/2
}

// Snapshot returns the current state.
func (g *TurboRace) Snapshot() Snapshot {
	x, y, rot := TrackPosition(g.position)
	d := RaceDetail{
		Position:     g.position,
		Lap:          g.lap,
		Boost:        g.boost,
		Speed:        g.speed,
		Perfect:      g.perfect,
		BoostsHit:    g.boostsHit,
		PerfectHits:  g.perfectHits,
		BoostsMissed: g.missed,
		RaceTimeMs:   int64(g.clock.Elapsed() / time.Millisecond),
		X:            x,
		Y:            y,
		Rotation:     rot,
	}
	if g.finished {
		d.FinishTimeMs = int64(g.finishedAt / time.Millisecond)
	}
	return g.snapshot(d)
}
