// Package lobby holds every signed-in player's session: their bracket, their
// practice results, which tutorials they have seen and the match they are
// playing right now.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"carnival/internal/game"
	"carnival/internal/identity"
	"carnival/internal/ledger"
	"carnival/internal/tournament"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchInProgress = errors.New("another match is in progress")
	ErrTutorialPending = errors.New("dismiss the tutorial first")
	ErrClosed          = errors.New("lobby closed")
)

// Events pushed to a player's connections.
const (
	EventMatchSnapshot  = "match:snapshot"
	EventMatchCompleted = "match:completed"
	EventTournament     = "tournament:state"
	EventBalance        = "balance"
	EventPracticeResult = "practice:result"
)

// Publisher delivers an event to one user's live connections.
type Publisher interface {
	Publish(userID, event string, data any)
}

// Observer receives counters for metrics.
type Observer interface {
	MatchStarted(id game.ID, mode game.Mode)
	MatchCompleted(id game.ID, mode game.Mode, score int)
	TournamentEntered()
	TournamentEnded(outcome tournament.Status)
	LedgerOp(op string, took time.Duration, err error)
}

// Config tunes sessions and their drivers.
type Config struct {
	Tournament   tournament.Config
	Advancer     tournament.Advancer // nil means every round advances
	Frame        time.Duration
	PublishEvery int
}

// Deps are the collaborators a lobby is built on.
type Deps struct {
	Registry  *game.Registry
	Ledger    ledger.Ledger
	Audit     *game.AuditLog // nil disables the audit trail
	Publisher Publisher      // nil drops pushes
	Observer  Observer       // nil disables metrics
}

// Lobby maps users to sessions.
type Lobby struct {
	cfg    Config
	reg    *game.Registry
	ledger ledger.Ledger
	audit  *game.AuditLog
	pub    Publisher
	obs    Observer

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	// Best practice score per game across all players.
	boards map[game.ID]*game.Leaderboard
}

// New creates a lobby.
func New(cfg Config, deps Deps) *Lobby {
	if deps.Registry == nil {
		deps.Registry = game.DefaultRegistry()
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	lb := &Lobby{
		cfg:      cfg,
		reg:      deps.Registry,
		ledger:   deps.Ledger,
		audit:    deps.Audit,
		pub:      deps.Publisher,
		obs:      deps.Observer,
		sessions: make(map[string]*Session),
		boards:   make(map[game.ID]*game.Leaderboard),
	}
	for _, e := range lb.reg.List() {
		lb.boards[e.Info.ID] = game.NewLeaderboard()
	}
	return lb
}

// Session returns the user's session, creating the ledger account and the
// session on first use.
func (lb *Lobby) Session(ctx context.Context, u identity.User) (*Session, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.closed {
		return nil, ErrClosed
	}
	if s, ok := lb.sessions[u.ID]; ok {
		return s, nil
	}
	if _, err := lb.ledger.EnsureUser(ctx, u.ID, u.Email); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	s := newSession(lb, u)
	lb.sessions[u.ID] = s
	log.Printf("👤 Session opened for %s", u.ID)
	return s, nil
}

// Games lists the catalogue.
func (lb *Lobby) Games() []game.Entry {
	return lb.reg.List()
}

// PracticeLeaders returns the best n practice scores for a game.
func (lb *Lobby) PracticeLeaders(id game.ID, n int) ([]game.Standing, error) {
	board, ok := lb.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", game.ErrUnknownGame, id)
	}
	return board.Top(n), nil
}

// Sessions returns the number of open sessions.
func (lb *Lobby) Sessions() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.sessions)
}

// Close stops every live match and ends all sessions.
func (lb *Lobby) Close() {
	lb.mu.Lock()
	lb.closed = true
	sessions := make([]*Session, 0, len(lb.sessions))
	for _, s := range lb.sessions {
		sessions = append(sessions, s)
	}
	clear(lb.sessions)
	lb.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	log.Printf("🛑 Lobby closed (%d sessions)", len(sessions))
}

func (lb *Lobby) record(t game.EventType, matchID, userID string, payload any) {
	if lb.audit == nil {
		return
	}
	lb.audit.Record(t, matchID, userID, payload)
}

func (lb *Lobby) advancer() tournament.Advancer {
	if lb.cfg.Advancer == nil {
		return tournament.AlwaysAdvance{}
	}
	return lb.cfg.Advancer
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

type nopObserver struct{}

func (nopObserver) MatchStarted(game.ID, game.Mode)        {}
func (nopObserver) MatchCompleted(game.ID, game.Mode, int) {}
func (nopObserver) TournamentEntered()                     {}
func (nopObserver) TournamentEnded(tournament.Status)      {}
func (nopObserver) LedgerOp(string, time.Duration, error)  {}
