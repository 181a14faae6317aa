package game

import (
	"time"

	"carnival/internal/clock"
	"carnival/internal/rng"
)

const (
	orbDuration  = 45 * time.Second
	orbWaveEvery = 6 * time.Second
	orbSequence  = 5
	orbFloor     = -10.0
	orbComboSpan = 100
)

// OrbType is the variant of an orb.
type OrbType string

const (
	OrbNormal OrbType = "normal"
	OrbBomb   OrbType = "bomb"
	OrbGolden OrbType = "golden"
)

var orbTiers = []tier{{20, 4}, {10, 3}, {5, 2}}

// Orb is a rising orb. Normal orbs carry a number 1-5; bombs and golden orbs
// carry 0. Positions are percentages of the play field.
type Orb struct {
	ID     int     `json:"id"`
	Number int     `json:"number"`
	Type   OrbType `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Speed  float64 `json:"speed"`
}

// OrbDetail is the game-specific part of an OrbBurst snapshot.
type OrbDetail struct {
	Orbs         []Orb `json:"orbs"`
	Sequence     []int `json:"sequence"`
	CurrentIndex int   `json:"currentIndex"`
	Expected     int   `json:"expected"`
	ComboTimer   int   `json:"comboTimer"`
	ComboCount   int   `json:"comboCount"`
	Shield       bool  `json:"shield"`
	Waves        int   `json:"waves"`
}

type orbEventKind uint8

const (
	orbWave orbEventKind = iota
	orbTick
	orbPop
)

type orbEvent struct {
	kind orbEventKind
	orb  int
}

// OrbBurst: numbered orbs rise in waves and must be popped in the order of
// the current wave's sequence. Bombs cost points unless a shield from a
// golden orb absorbs them.
type OrbBurst struct {
	session
	orbs         []Orb
	sequence     []int
	currentIndex int
	comboTimer   int
	comboCount   int
	shield       bool
	nextOrb      int
	waves        int
}

// NewOrbBurst creates a 45 second OrbBurst round.
func NewOrbBurst(sched *clock.Scheduler, seed int64, onComplete func(int)) *OrbBurst {
	g := &OrbBurst{session: newSession(OrbBurstID, sched, seed, orbTiers, onComplete)}
	g.clock = clock.NewRoundClock(sched, clock.RoundConfig{
		CountdownTicks: clock.DefaultCountdownTicks,
		Duration:       orbDuration,
		Tick:           clock.FrameTick,
	}, clock.Hooks{
		OnStart: func() {
			g.step(orbEvent{kind: orbWave})
			sched.Every(orbWaveEvery, func() { g.step(orbEvent{kind: orbWave}) })
		},
		OnTick:    func() { g.step(orbEvent{kind: orbTick}) },
		OnSettled: func() { g.finish(g.score) },
	})
	return g
}

// Apply handles ActionPop; Target is the orb ID.
func (g *OrbBurst) Apply(a Action) bool {
	if a.Kind != ActionPop {
		return false
	}
	return g.step(orbEvent{kind: orbPop, orb: a.Target})
}

func (g *OrbBurst) step(ev orbEvent) bool {
	if !g.playing() {
		return false
	}
	switch ev.kind {
	case orbWave:
		g.spawnWave()
	case orbTick:
		kept := g.orbs[:0]
		for _, o := range g.orbs {
			o.Y -= o.Speed * 0.016
			if o.Y > orbFloor {
				kept = append(kept, o)
			}
		}
		g.orbs = kept
		g.comboTimer = max(0, g.comboTimer-16)
	case orbPop:
		return g.pop(ev.orb)
	}
	return true
}

func (g *OrbBurst) spawnWave() {
	g.waves++
	g.sequence = rng.Shuffle(g.rng, []int{1, 2, 3, 4, 5})
	g.currentIndex = 0

	for i, num := range g.sequence {
		g.orbs = append(g.orbs, Orb{
			ID:     g.newOrbID(),
			Number: num,
			Type:   OrbNormal,
			X:      15 + float64(i)*17.5 + float64(g.rng.NextInt(-5, 5)),
			Y:      108 + float64(i)*8,
			Speed:  float64(g.rng.NextInt(18, 32)),
		})
	}

	bombs := g.rng.NextInt(1, 2)
	for i := 0; i < bombs; i++ {
		g.orbs = append(g.orbs, Orb{
			ID:    g.newOrbID(),
			Type:  OrbBomb,
			X:     float64(g.rng.NextInt(15, 85)),
			Y:     115 + float64(g.rng.NextInt(0, 20)),
			Speed: float64(g.rng.NextInt(22, 35)),
		})
	}

	if g.rng.Next() < 0.2 {
		g.orbs = append(g.orbs, Orb{
			ID:    g.newOrbID(),
			Type:  OrbGolden,
			X:     float64(g.rng.NextInt(20, 80)),
			Y:     120,
			Speed: float64(g.rng.NextInt(35, 50)),
		})
	}
}

func (g *OrbBurst) newOrbID() int {
	id := g.nextOrb
	g.nextOrb++
	return id
}

func (g *OrbBurst) pop(id int) bool {
	idx := -1
	for i := range g.orbs {
		if g.orbs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	o := g.orbs[idx]
	mult := g.multiplier()

	switch o.Type {
	case OrbBomb:
		if g.shield {
			g.shield = false
		} else {
			g.penalize(100)
			g.resetCombo()
		}
		g.remove(idx)
	case OrbGolden:
		if !g.shield {
			g.shield = true
			g.streak++
		} else {
			g.reward(25 * mult)
		}
		g.remove(idx)
	default:
		if o.Number == g.expected() {
			bonus := 0
			if g.comboTimer > 0 {
				bonus = g.comboCount * 5
				g.comboCount++
			} else {
				g.comboCount = 1
			}
			g.comboTimer = orbComboSpan
			g.reward((10 + bonus) * mult)
			g.currentIndex = (g.currentIndex + 1) % orbSequence
			g.remove(idx)
		} else if g.shield {
			g.shield = false
		} else {
			g.streak = 0
			g.resetCombo()
		}
	}
	return true
}

func (g *OrbBurst) expected() int {
	if len(g.sequence) == 0 {
		return 0
	}
	return g.sequence[g.currentIndex]
}

func (g *OrbBurst) resetCombo() {
	g.comboCount = 0
	g.comboTimer = 0
}

func (g *OrbBurst) remove(idx int) {
	g.orbs = append(g.orbs[:idx], g.orbs[idx+1:]...)
}

// Snapshot returns the current state.
func (g *OrbBurst) Snapshot() Snapshot {
	return g.snapshot(OrbDetail{
		Orbs:         append([]Orb(nil), g.orbs...),
		Sequence:     append([]int(nil), g.sequence...),
		CurrentIndex: g.currentIndex,
		Expected:     g.expected(),
		ComboTimer:   g.comboTimer,
		ComboCount:   g.comboCount,
		Shield:       g.shield,
		Waves:        g.waves,
	})
}
