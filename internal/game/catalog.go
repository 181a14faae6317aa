package game

import (
	"fmt"
	"sort"
	"sync"

	"carnival/internal/clock"
)

// ID identifies a mini-game type.
type ID string

const (
	WhackAMoleID    ID = "whack"
	TargetShooterID ID = "target"
	OrbBurstID      ID = "balloon"
	MemoryPathID    ID = "memory"
	TurboRaceID     ID = "race"
)

// Mode is the context a match runs in.
type Mode string

const (
	ModeTournament Mode = "tournament"
	ModePractice   Mode = "practice"
)

// Info is the display metadata of a game.
type Info struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Tutorial is the one-time instructional interstitial shown before the first
// play of a game type.
type Tutorial struct {
	Title       string   `json:"title"`
	Icon        string   `json:"icon"`
	Instruction string   `json:"instruction"`
	Tips        []string `json:"tips"`
}

// Factory builds an engine bound to a scheduler.
type Factory func(sched *clock.Scheduler, seed int64, onComplete func(score int)) Engine

// Entry is one registered game.
type Entry struct {
	Info     Info     `json:"info"`
	Tutorial Tutorial `json:"tutorial"`
	New      Factory  `json:"-"`
}

// Registry maps game IDs to their factories and metadata.
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]Entry)}
}

// DefaultRegistry returns a registry holding all five games.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Entry{
		Info: Info{ID: WhackAMoleID, Name: "Whack-a-Mole", Icon: "🔨", Color: "#ff6b6b"},
		Tutorial: Tutorial{
			Title:       "Whack-a-Mole",
			Icon:        "🔨",
			Instruction: "Tap moles when they appear",
			Tips:        []string{"⭐ Golden moles = 5x points", "🔥 Build streaks for multipliers", "⚡ Be fast but accurate"},
		},
		New: func(s *clock.Scheduler, seed int64, done func(int)) Engine { return NewWhackAMole(s, seed, done) },
	})
	r.Register(Entry{
		Info: Info{ID: TargetShooterID, Name: "Target Shooter", Icon: "🎯", Color: "#4ecdc4"},
		Tutorial: Tutorial{
			Title:       "Target Shooter",
			Icon:        "🎯",
			Instruction: "Predict where the target will stop",
			Tips:        []string{"👀 Watch the movement pattern", "⚡ Lock in early for bonus points", "⭐ Golden rounds = 2.5x points"},
		},
		New: func(s *clock.Scheduler, seed int64, done func(int)) Engine { return NewTargetShooter(s, seed, done) },
	})
	r.Register(Entry{
		Info: Info{ID: OrbBurstID, Name: "Orb Burst", Icon: "🔮", Color: "#a855f7"},
		Tutorial: Tutorial{
			Title:       "Orb Burst",
			Icon:        "🔮",
			Instruction: "Pop orbs in sequence: 1 → 2 → 3 → 4 → 5",
			Tips:        []string{"💀 Avoid skulls (-100 pts)", "⭐ Stars give streak shield", "🔥 Streaks boost your multiplier"},
		},
		New: func(s *clock.Scheduler, seed int64, done func(int)) Engine { return NewOrbBurst(s, seed, done) },
	})
	r.Register(Entry{
		Info: Info{ID: MemoryPathID, Name: "Memory Path", Icon: "🧠", Color: "#3b82f6"},
		Tutorial: Tutorial{
			Title:       "Memory Path",
			Icon:        "🧠",
			Instruction: "Watch the path, then repeat it",
			Tips:        []string{"⭐ Golden tiles = 5x points", "⚡ Complete fast for speed bonus", "🧠 Paths get longer over time"},
		},
		New: func(s *clock.Scheduler, seed int64, done func(int)) Engine { return NewMemoryPath(s, seed, done) },
	})
	r.Register(Entry{
		Info: Info{ID: TurboRaceID, Name: "Turbo Race", Icon: "🏎️", Color: "#f59e0b"},
		Tutorial: Tutorial{
			Title:       "Turbo Race",
			Icon:        "🏎️",
			Instruction: "Tap BOOST when it appears",
			Tips:        []string{"⚡ First 300ms = PERFECT boost", "🔥 Build streaks for 3x speed", "⚠️ Too early = penalty"},
		},
		New: func(s *clock.Scheduler, seed int64, done func(int)) Engine { return NewTurboRace(s, seed, done) },
	})
	return r
}

// Register adds or replaces a game.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Info.ID] = e
}

// Get returns the entry for id.
func (r *Registry) Get(id ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// List returns every entry ordered by ID.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.ID < out[j].Info.ID })
	return out
}

// NewEngine builds the engine registered for id.
func (r *Registry) NewEngine(id ID, sched *clock.Scheduler, seed int64, onComplete func(int)) (Engine, error) {
	e, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, id)
	}
	return e.New(sched, seed, onComplete), nil
}

// TutorialSet tracks which game tutorials a player has dismissed.
type TutorialSet struct {
	mu   sync.RWMutex
	seen map[ID]bool
}

// NewTutorialSet creates an empty set.
func NewTutorialSet() *TutorialSet {
	return &TutorialSet{seen: make(map[ID]bool)}
}

// Seen reports whether the tutorial for id was already shown.
func (t *TutorialSet) Seen(id ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seen[id]
}

// MarkSeen records the tutorial for id as dismissed.
func (t *TutorialSet) MarkSeen(id ID) {
	t.mu.Lock()
	t.seen[id] = true
	t.mu.Unlock()
}
