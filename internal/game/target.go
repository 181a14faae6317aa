package game

import (
	"math"
	"time"

	"carnival/internal/clock"
)

const (
	targetDuration   = 45 * time.Second
	targetSlots      = 5
	targetSlotWidth  = 60.0
	targetTrackWidth = targetSlots * targetSlotWidth
	targetStopSpeed  = 8.0
	targetDt         = 0.016
	targetBounce     = 0.9
	targetRevealWait = 300 * time.Millisecond
	targetRoundGap   = 800 * time.Millisecond
)

// TargetPhase is the phase of a single TargetShooter round.
type TargetPhase string

const (
	TargetTracking TargetPhase = "tracking"
	TargetLocked   TargetPhase = "locked"
	TargetReveal   TargetPhase = "reveal"
)

// TargetResult is how a round resolved.
type TargetResult string

const (
	TargetHit     TargetResult = "hit"
	TargetMiss    TargetResult = "miss"
	TargetTimeout TargetResult = "timeout"
)

var targetTiers = []tier{{7, 4}, {5, 3}, {3, 2}}

// TargetDetail is the game-specific part of a TargetShooter snapshot.
type TargetDetail struct {
	Round        int          `json:"round"`
	RoundPhase   TargetPhase  `json:"roundPhase"`
	X            float64      `json:"x"`
	Velocity     float64      `json:"velocity"`
	SelectedSlot int          `json:"selectedSlot"`
	FinalSlot    int          `json:"finalSlot"`
	LockBonus    int          `json:"lockBonus"`
	Golden       bool         `json:"golden"`
	LastResult   TargetResult `json:"lastResult,omitempty"`
	Hits         int          `json:"hits"`
	Misses       int          `json:"misses"`
}

type targetEventKind uint8

const (
	targetFrame targetEventKind = iota
	targetLock
	targetResolve
	targetNextRound
)

type targetEvent struct {
	kind targetEventKind
	slot int
}

// TargetShooter: a puck slides along a five-slot track, slowing by friction
// and bouncing off the walls. The player locks in the slot it will stop in.
type TargetShooter struct {
	session
	round      int
	phase      TargetPhase
	x, v       float64
	friction   float64
	golden     bool
	selected   int
	finalSlot  int
	lockBonus  int
	lastResult TargetResult
	hits       int
	misses     int
}

// NewTargetShooter creates a 45 second TargetShooter round.
func NewTargetShooter(sched *clock.Scheduler, seed int64, onComplete func(int)) *TargetShooter {
	g := &TargetShooter{
		session:   newSession(TargetShooterID, sched, seed, targetTiers, onComplete),
		phase:     TargetTracking,
		x:         targetTrackWidth / 2,
		selected:  -1,
		finalSlot: -1,
	}
	g.clock = clock.NewRoundClock(sched, clock.RoundConfig{
		CountdownTicks: clock.DefaultCountdownTicks,
		Duration:       targetDuration,
		Tick:           100 * time.Millisecond,
	}, clock.Hooks{
		OnStart: func() {
			g.startRound()
			sched.Every(clock.FrameTick, func() { g.step(targetEvent{kind: targetFrame}) })
		},
		OnSettled: func() { g.finish(g.score) },
	})
	return g
}

// Apply handles ActionLock.
func (g *TargetShooter) Apply(a Action) bool {
	if a.Kind != ActionLock {
		return false
	}
	return g.step(targetEvent{kind: targetLock, slot: a.Target})
}

func (g *TargetShooter) step(ev targetEvent) bool {
	if !g.playing() {
		return false
	}
	switch ev.kind {
	case targetFrame:
		g.simulate()
	case targetLock:
		if g.phase != TargetTracking || ev.slot < 0 || ev.slot >= targetSlots {
			return false
		}
		g.selected = ev.slot
		g.phase = TargetLocked
		g.lockBonus = min(50, int(math.Floor(math.Abs(g.v)/4)))
	case targetResolve:
		g.resolve()
	case targetNextRound:
		if g.clock.Elapsed() < targetDuration {
			g.startRound()
		}
	}
	return true
}

// startRound draws golden, start slot, direction, speed and friction, in
// that order.
func (g *TargetShooter) startRound() {
	g.round++
	g.selected = -1
	g.finalSlot = -1
	g.lastResult = ""
	g.lockBonus = 0
	g.phase = TargetTracking

	g.golden = g.rng.Next() < 0.15
	start := g.rng.NextInt(0, targetSlots-1)
	g.x = float64(start)*targetSlotWidth + targetSlotWidth/2
	dir := -1.0
	if g.rng.Next() > 0.5 {
		dir = 1
	}
	speed := float64(g.rng.NextInt(180, 280))
	g.v = speed * dir
	g.friction = 0.982 + g.rng.Next()*0.012
}

func (g *TargetShooter) simulate() {
	g.x, g.v = stepTarget(g.x, g.v, g.friction)

	if math.Abs(g.v) >= targetStopSpeed {
		return
	}
	if g.phase != TargetTracking && g.phase != TargetLocked {
		return
	}
	g.finalSlot = slotAt(g.x)
	g.phase = TargetReveal
	g.sched.After(targetRevealWait, func() { g.step(targetEvent{kind: targetResolve}) })
}

func (g *TargetShooter) resolve() {
	switch {
	case g.selected < 0:
		g.lastResult = TargetTimeout
		g.streak = 0
		g.misses++
	case g.selected == g.finalSlot:
		base := 100
		if g.golden {
			base = 250
		}
		g.lastResult = TargetHit
		g.hits++
		g.reward((base + g.lockBonus) * g.multiplier())
	default:
		g.lastResult = TargetMiss
		g.streak = 0
		g.misses++
	}
	g.sched.After(targetRoundGap, func() { g.step(targetEvent{kind: targetNextRound}) })
}

// stepTarget advances the puck one frame: friction, integrate, bounce.
func stepTarget(x, v, friction float64) (float64, float64) {
	v *= friction
	x += v * targetDt
	const lo, hi = targetSlotWidth / 2, targetTrackWidth - targetSlotWidth/2
	if x <= lo {
		x = lo
		v = math.Abs(v) * targetBounce
	} else if x >= hi {
		x = hi
		v = -math.Abs(v) * targetBounce
	}
	return x, v
}

// NaturalStop runs the physics with no input and returns the slot the puck
// settles in.
func NaturalStop(x, v, friction float64) int {
	for math.Abs(v) >= targetStopSpeed {
		x, v = stepTarget(x, v, friction)
	}
	return slotAt(x)
}

func slotAt(x float64) int {
	s := int(math.Floor(x / targetSlotWidth))
	return max(0, min(targetSlots-1, s))
}

// Snapshot returns the current state.
func (g *TargetShooter) Snapshot() Snapshot {
	return g.snapshot(TargetDetail{
		Round:        g.round,
		RoundPhase:   g.phase,
		X:            g.x,
		Velocity:     g.v,
		SelectedSlot: g.selected,
		FinalSlot:    g.finalSlot,
		LockBonus:    g.lockBonus,
		Golden:       g.golden,
		LastResult:   g.lastResult,
		Hits:         g.hits,
		Misses:       g.misses,
	})
}
