package game

import (
	"time"

	"carnival/internal/clock"
	"carnival/internal/rng"
)

const (
	whackDuration  = 45 * time.Second
	whackCells     = 9
	whackComboSpan = 100 // ms window after a normal hit
)

// MoleType is the variant of a spawned mole.
type MoleType string

const (
	MoleNormal MoleType = "normal"
	MoleGolden MoleType = "golden"
	MoleSpeed  MoleType = "speed"
	MoleBomb   MoleType = "bomb"
)

var whackTiers = []tier{{15, 4}, {10, 3}, {5, 2}}

// Mole is a live mole in a cell.
type Mole struct {
	ID        uint64        `json:"id"`
	Type      MoleType      `json:"type"`
	Cell      int           `json:"cell"`
	SpawnedAt time.Duration `json:"spawnedAt"`
	Lifetime  time.Duration `json:"lifetime"`
	timer     clock.TimerID
}

// WhackDetail is the game-specific part of a WhackAMole snapshot.
type WhackDetail struct {
	Cells      [whackCells]*Mole `json:"cells"`
	ComboTimer int               `json:"comboTimer"`
	Hits       int               `json:"hits"`
	Bombs      int               `json:"bombs"`
}

type whackEventKind uint8

const (
	whackSpawn whackEventKind = iota
	whackExpire
	whackTick
	whackHit
)

type whackEvent struct {
	kind whackEventKind
	cell int
	mole uint64
}

// WhackAMole: moles pop up in a 3x3 grid and must be hit before they hide.
// Bombs cost points; golden and speed moles pay more.
type WhackAMole struct {
	session
	cells      [whackCells]*Mole
	comboTimer int
	nextMole   uint64
	hits       int
	bombs      int
}

// NewWhackAMole creates a 45 second WhackAMole round.
func NewWhackAMole(sched *clock.Scheduler, seed int64, onComplete func(int)) *WhackAMole {
	g := &WhackAMole{session: newSession(WhackAMoleID, sched, seed, whackTiers, onComplete)}
	g.clock = clock.NewRoundClock(sched, clock.RoundConfig{
		CountdownTicks: clock.DefaultCountdownTicks,
		Duration:       whackDuration,
		Tick:           100 * time.Millisecond,
	}, clock.Hooks{
		OnStart:   func() { g.step(whackEvent{kind: whackSpawn}) },
		OnTick:    func() { g.step(whackEvent{kind: whackTick}) },
		OnSettled: func() { g.finish(g.score) },
	})
	return g
}

// Apply handles ActionWhack.
func (g *WhackAMole) Apply(a Action) bool {
	if a.Kind != ActionWhack {
		return false
	}
	return g.step(whackEvent{kind: whackHit, cell: a.Target})
}

func (g *WhackAMole) step(ev whackEvent) bool {
	if !g.playing() {
		return false
	}
	switch ev.kind {
	case whackSpawn:
		g.spawn()
	case whackExpire:
		m := g.cells[ev.cell]
		if m == nil || m.ID != ev.mole {
			return false
		}
		if m.Type != MoleBomb {
			g.streak = 0
		}
		g.cells[ev.cell] = nil
	case whackTick:
		g.comboTimer -= 100
		if g.comboTimer < 0 {
			g.comboTimer = 0
		}
	case whackHit:
		return g.hit(ev.cell)
	}
	return true
}

func (g *WhackAMole) spawn() {
	elapsed := g.clock.Elapsed()
	if elapsed >= whackDuration {
		return
	}

	empty := make([]int, 0, whackCells)
	for i, m := range g.cells {
		if m == nil {
			empty = append(empty, i)
		}
	}
	if len(empty) > 0 {
		cell := rng.Pick(g.rng, empty)
		r := g.rng.Next()

		kind := MoleNormal
		switch {
		case r < 0.05:
			kind = MoleGolden
		case r < 0.12:
			kind = MoleSpeed
		case r < 0.25:
			kind = MoleBomb
		}

		var ms int
		switch kind {
		case MoleSpeed:
			ms = g.rng.NextInt(400, 600)
		case MoleGolden:
			ms = g.rng.NextInt(600, 900)
		default:
			ms = g.rng.NextInt(800, 1400)
		}

		g.nextMole++
		m := &Mole{
			ID:        g.nextMole,
			Type:      kind,
			Cell:      cell,
			SpawnedAt: elapsed,
			Lifetime:  time.Duration(ms) * time.Millisecond,
		}
		id := m.ID
		m.timer = g.sched.After(m.Lifetime, func() {
			g.step(whackEvent{kind: whackExpire, cell: cell, mole: id})
		})
		g.cells[cell] = m
	}

	base := 400
	switch {
	case elapsed < 15*time.Second:
		base = 700
	case elapsed < 30*time.Second:
		base = 550
	}
	next := g.rng.NextInt(base-150, base+150)
	g.sched.After(time.Duration(next)*time.Millisecond, func() {
		g.step(whackEvent{kind: whackSpawn})
	})
}

func (g *WhackAMole) hit(cell int) bool {
	if cell < 0 || cell >= whackCells || g.cells[cell] == nil {
		return false
	}
	m := g.cells[cell]
	g.cells[cell] = nil
	g.sched.Cancel(m.timer)

	mult := g.multiplier()
	switch m.Type {
	case MoleBomb:
		g.bombs++
		g.penalize(150)
	case MoleGolden:
		g.hits++
		g.reward(300 * mult)
	case MoleSpeed:
		g.hits++
		g.reward(150 * mult)
	default:
		bonus := 0
		if g.comboTimer > 0 {
			bonus = 25
		}
		g.hits++
		g.reward((100 + bonus) * mult)
		g.comboTimer = whackComboSpan
	}
	return true
}

// Snapshot returns the current state.
func (g *WhackAMole) Snapshot() Snapshot {
	d := WhackDetail{ComboTimer: g.comboTimer, Hits: g.hits, Bombs: g.bombs}
	for i, m := range g.cells {
		if m != nil {
			c := *m
			d.Cells[i] = &c
		}
	}
	return g.snapshot(d)
}
