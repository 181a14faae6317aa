package game

import (
	"math"
	"time"

	"carnival/internal/clock"
	"carnival/internal/rng"
)

const (
	memoryDuration   = 60 * time.Second
	memoryGrid       = 5
	memoryTiles      = memoryGrid * memoryGrid
	memoryInputDelay = 300 * time.Millisecond
	memoryNextRound  = 600 * time.Millisecond
	memoryRetry      = 1200 * time.Millisecond
)

// MemoryPhase is the phase of a single MemoryPath round.
type MemoryPhase string

const (
	MemoryShowing  MemoryPhase = "showing"
	MemoryInput    MemoryPhase = "input"
	MemoryComplete MemoryPhase = "complete"
	MemoryWrong    MemoryPhase = "wrong"
)

var memoryTiers = []tier{{5, 3}, {3, 2}}

// MemoryDetail is the game-specific part of a MemoryPath snapshot. The path
// itself is only exposed while it is being shown or after a wrong tap.
type MemoryDetail struct {
	RoundPhase MemoryPhase `json:"roundPhase"`
	PathLength int         `json:"pathLength"`
	ShowIndex  int         `json:"showIndex"`
	Highlight  int         `json:"highlight"`
	Golden     int         `json:"golden"`
	Clicks     []int       `json:"clicks"`
	WrongTile  int         `json:"wrongTile"`
	Revealed   []int       `json:"revealed,omitempty"`
	Completed  int         `json:"completed"`
}

type memoryEventKind uint8

const (
	memoryRound memoryEventKind = iota
	memoryShow
	memoryOpenInput
	memoryTap
)

type memoryEvent struct {
	kind memoryEventKind
	tile int
}

// MemoryPath: a path over a 5x5 grid is flashed tile by tile and the player
// repeats it. Paths grow longer as the clock runs down.
type MemoryPath struct {
	session
	phase      MemoryPhase
	path       []int
	golden     int
	showIndex  int
	clicks     []int
	wrongTile  int
	completed  int
	roundStart time.Duration
}

// NewMemoryPath creates a 60 second MemoryPath round.
func NewMemoryPath(sched *clock.Scheduler, seed int64, onComplete func(int)) *MemoryPath {
	g := &MemoryPath{
		session:   newSession(MemoryPathID, sched, seed, memoryTiers, onComplete),
		golden:    -1,
		showIndex: -1,
		wrongTile: -1,
	}
	g.clock = clock.NewRoundClock(sched, clock.RoundConfig{
		CountdownTicks: clock.DefaultCountdownTicks,
		Duration:       memoryDuration,
		Tick:           time.Second,
	}, clock.Hooks{
		OnStart:   func() { g.step(memoryEvent{kind: memoryRound}) },
		OnSettled: func() { g.finish(g.score) },
	})
	return g
}

// Apply handles ActionTap; Target is the tile index.
func (g *MemoryPath) Apply(a Action) bool {
	if a.Kind != ActionTap {
		return false
	}
	return g.step(memoryEvent{kind: memoryTap, tile: a.Target})
}

func (g *MemoryPath) step(ev memoryEvent) bool {
	if !g.playing() {
		return false
	}
	switch ev.kind {
	case memoryRound:
		g.startRound()
	case memoryShow:
		if g.phase != MemoryShowing {
			return false
		}
		g.showIndex++
		if g.showIndex < len(g.path) {
			g.sched.After(showStep(len(g.path)), func() { g.step(memoryEvent{kind: memoryShow}) })
		} else {
			g.sched.After(memoryInputDelay, func() { g.step(memoryEvent{kind: memoryOpenInput}) })
		}
	case memoryOpenInput:
		g.showIndex = -1
		g.phase = MemoryInput
	case memoryTap:
		if g.phase != MemoryInput {
			return false
		}
		g.tap(ev.tile)
	}
	return true
}

// pathLength grows as time runs out.
func pathLength(timeLeft int) int {
	switch {
	case timeLeft > 45:
		return 4
	case timeLeft > 30:
		return 5
	case timeLeft > 15:
		return 6
	}
	return 7
}

func showStep(length int) time.Duration {
	switch {
	case length <= 4:
		return 400 * time.Millisecond
	case length <= 5:
		return 350 * time.Millisecond
	}
	return 300 * time.Millisecond
}

func (g *MemoryPath) startRound() {
	g.path = generatePath(g.rng, pathLength(g.clock.Remaining()))
	g.golden = -1
	if g.rng.Next() < 0.25 {
		g.golden = g.path[g.rng.NextInt(1, len(g.path)-1)]
	}
	g.clicks = g.clicks[:0]
	g.wrongTile = -1
	g.showIndex = 0
	g.roundStart = g.sched.Now()
	g.phase = MemoryShowing
	g.sched.After(showStep(len(g.path)), func() { g.step(memoryEvent{kind: memoryShow}) })
}

// generatePath draws a self-avoiding walk over 4-connected tiles, starting
// over whenever the walk boxes itself in.
func generatePath(r *rng.Random, length int) []int {
	for {
		if p, ok := tryPath(r, length); ok {
			return p
		}
	}
}

func tryPath(r *rng.Random, length int) ([]int, bool) {
	path := make([]int, 0, length)
	used := make(map[int]bool, length)
	current := r.NextInt(0, memoryTiles-1)
	path = append(path, current)
	used[current] = true

	for len(path) < length {
		var open []int
		for _, n := range neighbors(current) {
			if !used[n] {
				open = append(open, n)
			}
		}
		if len(open) == 0 {
			return nil, false
		}
		current = rng.Pick(r, open)
		path = append(path, current)
		used[current] = true
	}
	return path, true
}

// neighbors lists the 4-connected tiles in up, down, left, right order.
func neighbors(tile int) []int {
	row, col := tile/memoryGrid, tile%memoryGrid
	out := make([]int, 0, 4)
	if row > 0 {
		out = append(out, tile-memoryGrid)
	}
	if row < memoryGrid-1 {
		out = append(out, tile+memoryGrid)
	}
	if col > 0 {
		out = append(out, tile-1)
	}
	if col < memoryGrid-1 {
		out = append(out, tile+1)
	}
	return out
}

func (g *MemoryPath) tap(tile int) {
	if tile != g.path[len(g.clicks)] {
		g.wrongTile = tile
		g.phase = MemoryWrong
		g.streak = 0
		g.sched.After(memoryRetry, func() { g.step(memoryEvent{kind: memoryRound}) })
		return
	}

	g.clicks = append(g.clicks, tile)
	mult := g.multiplier()
	if tile == g.golden {
		g.score += 50 * mult
	} else {
		g.score += 10 * mult
	}
	if len(g.clicks) < len(g.path) {
		return
	}

	n := len(g.path)
	taken := float64((g.sched.Now()-g.roundStart)/time.Millisecond) / 1000
	budget := float64(n) * 1.5
	speedBonus := 0
	if taken < budget {
		speedBonus = int(math.Floor((budget - taken) * 20))
	}
	g.reward((n*20 + speedBonus) * mult)
	g.completed++
	g.phase = MemoryComplete
	g.sched.After(memoryNextRound, func() { g.step(memoryEvent{kind: memoryRound}) })
}

// Snapshot returns the current state.
func (g *MemoryPath) Snapshot() Snapshot {
	d := MemoryDetail{
		RoundPhase: g.phase,
		PathLength: len(g.path),
		ShowIndex:  g.showIndex,
		Highlight:  -1,
		Golden:     -1,
		Clicks:     append([]int(nil), g.clicks...),
		WrongTile:  g.wrongTile,
		Completed:  g.completed,
	}
	if g.phase == MemoryShowing && g.showIndex >= 0 && g.showIndex < len(g.path) {
		d.Highlight = g.path[g.showIndex]
		if d.Highlight == g.golden {
			d.Golden = g.golden
		}
	}
	if g.phase == MemoryWrong {
		d.Revealed = append([]int(nil), g.path...)
		d.Golden = g.golden
	}
	return g.snapshot(d)
}
