package lobby

import (
	"context"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"carnival/internal/game"
	"carnival/internal/identity"
	"carnival/internal/ledger"
	"carnival/internal/practice"
	"carnival/internal/tournament"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// tournamentSeedMax bounds randomly drawn bracket seeds.
const tournamentSeedMax = 1_000_000

// Session is one user's state. At most one match is current at a time.
type Session struct {
	lobby     *Lobby
	user      identity.User
	coord     *tournament.Coordinator
	tutorials *game.TutorialSet
	practice  *practice.Runner
	unsub     func()

	mu      sync.Mutex
	current *liveMatch
}

type liveMatch struct {
	driver    *game.Driver
	mode      game.Mode
	seed      int64
	started   bool // guarded by Session.mu
	completed atomic.Bool
}

// MatchView describes a match to its player. Tutorial is set while the
// match waits for the player to dismiss it.
type MatchView struct {
	MatchID  string         `json:"matchId"`
	Game     game.ID        `json:"game"`
	Seed     int64          `json:"seed"`
	Mode     game.Mode      `json:"mode"`
	Info     game.Info      `json:"info"`
	Tutorial *game.Tutorial `json:"tutorial,omitempty"`
	Snapshot game.Snapshot  `json:"snapshot"`
}

// Profile is the player's home screen.
type Profile struct {
	User          ledger.User       `json:"user"`
	Tournament    tournament.State  `json:"tournament"`
	Practice      []practice.Result `json:"practice"`
	TutorialsSeen []game.ID         `json:"tutorialsSeen"`
	Match         *MatchView        `json:"match,omitempty"`
}

// BalanceEvent is pushed after every ledger movement.
type BalanceEvent struct {
	Balance     decimal.Decimal    `json:"balance"`
	Transaction ledger.Transaction `json:"transaction"`
}

// MatchEvent wraps a snapshot with its match ID.
type MatchEvent struct {
	MatchID  string        `json:"matchId"`
	Snapshot game.Snapshot `json:"snapshot"`
}

func newSession(lb *Lobby, u identity.User) *Session {
	s := &Session{
		lobby:     lb,
		user:      u,
		coord:     tournament.NewCoordinator(lb.cfg.Tournament, lb.ledger, lb.advancer(), u.ID),
		tutorials: game.NewTutorialSet(),
		practice:  practice.NewRunner(lb.reg),
	}
	s.practice.OnResult = func(res practice.Result) {
		if board, ok := lb.boards[res.Game]; ok {
			board.SubmitBest(u.ID, res.Score)
		}
		lb.pub.Publish(u.ID, EventPracticeResult, res)
	}

	changes, cancel := lb.ledger.Subscribe(u.ID)
	s.unsub = cancel
	go func() {
		for c := range changes {
			lb.pub.Publish(u.ID, EventBalance, BalanceEvent{Balance: c.User.Balance, Transaction: c.Transaction})
		}
	}()
	return s
}

// User returns the session's identity.
func (s *Session) User() identity.User { return s.user }

// Profile gathers the home screen.
func (s *Session) Profile(ctx context.Context) (Profile, error) {
	u, err := s.lobby.ledger.User(ctx, s.user.ID)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		User:       u,
		Tournament: s.coord.State(),
		Practice:   s.practice.Results(),
	}
	for _, e := range s.lobby.reg.List() {
		if s.tutorials.Seen(e.Info.ID) {
			p.TutorialsSeen = append(p.TutorialsSeen, e.Info.ID)
		}
	}

	s.mu.Lock()
	if s.current != nil {
		v := s.view(s.current)
		p.Match = &v
	}
	s.mu.Unlock()
	return p, nil
}

// Deposit credits one of the fixed test-mode amounts.
func (s *Session) Deposit(ctx context.Context, amount decimal.Decimal) (ledger.Transaction, error) {
	start := time.Now()
	tx, err := ledger.Deposit(ctx, s.lobby.ledger, s.user.ID, amount)
	s.lobby.obs.LedgerOp("deposit", time.Since(start), err)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.lobby.record(game.EventTypeDeposit, "", s.user.ID, tx)
	log.Printf("💰 %s deposited %s", s.user.ID, amount)
	return tx, nil
}

// Transactions returns the user's history, newest first.
func (s *Session) Transactions(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return s.lobby.ledger.Transactions(ctx, s.user.ID, limit)
}

// EnterTournament pays the entry fee and seeds a bracket. A nil seed draws
// one at random.
func (s *Session) EnterTournament(ctx context.Context, seed *int64) (tournament.State, error) {
	sd := rand.Int64N(tournamentSeedMax)
	if seed != nil {
		sd = *seed
	}

	start := time.Now()
	st, err := s.coord.Enter(ctx, sd)
	s.lobby.obs.LedgerOp("entry", time.Since(start), err)
	if err != nil {
		return st, err
	}

	s.lobby.obs.TournamentEntered()
	s.lobby.record(game.EventTypeTournamentEntered, "", s.user.ID, game.TournamentPayload{
		TournamentID:     st.TournamentID,
		Seed:             st.Seed,
		Round:            st.Round,
		PlayersRemaining: st.PlayersRemaining,
		Game:             st.RoundGame,
		GameSeed:         st.GameSeed,
		Amount:           st.EntryFee.String(),
	})
	s.lobby.pub.Publish(s.user.ID, EventTournament, st)
	return st, nil
}

// Tournament returns the bracket.
func (s *Session) Tournament() tournament.State {
	return s.coord.State()
}

// StartRound launches the current bracket round.
func (s *Session) StartRound() (MatchView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy() {
		return MatchView{}, ErrMatchInProgress
	}
	id, seed, err := s.coord.StartRound()
	if err != nil {
		return MatchView{}, err
	}
	matchID := uuid.NewString()
	m, err := game.NewMatch(s.lobby.reg, matchID, s.user.ID, id, seed, game.ModeTournament, nil)
	if err != nil {
		s.coord.AbortRound()
		return MatchView{}, err
	}
	s.lobby.pub.Publish(s.user.ID, EventTournament, s.coord.State())
	return s.launch(m, seed, game.ModeTournament), nil
}

// NextRound leaves the results screen.
func (s *Session) NextRound(ctx context.Context) (tournament.State, error) {
	start := time.Now()
	st, err := s.coord.NextRound(ctx)
	if err != nil {
		s.lobby.obs.LedgerOp("next_round", time.Since(start), err)
		return st, err
	}
	if st.Status == tournament.StatusWinner {
		s.lobby.obs.LedgerOp("prize", time.Since(start), nil)
	}

	switch st.Status {
	case tournament.StatusWinner, tournament.StatusEliminated:
		p := game.TournamentPayload{
			TournamentID:     st.TournamentID,
			Seed:             st.Seed,
			Round:            st.Round,
			PlayersRemaining: st.PlayersRemaining,
			Outcome:          string(st.Status),
		}
		if st.PrizeCredited {
			p.Amount = st.Prize.String()
		}
		s.lobby.obs.TournamentEnded(st.Status)
		s.lobby.record(game.EventTypeTournamentEnded, "", s.user.ID, p)
	}
	s.lobby.pub.Publish(s.user.ID, EventTournament, st)
	return st, nil
}

// LeaveTournament abandons the bracket and stops its match. The entry fee
// is not refunded.
func (s *Session) LeaveTournament() tournament.State {
	s.mu.Lock()
	if s.current != nil && s.current.mode == game.ModeTournament {
		s.current.driver.Stop()
		s.current = nil
	}
	s.mu.Unlock()

	s.coord.Abandon()
	st := s.coord.State()
	s.lobby.pub.Publish(s.user.ID, EventTournament, st)
	return st
}

// StartPractice launches an unpaid game. A nil seed draws one at random.
func (s *Session) StartPractice(id game.ID, seed *int64) (MatchView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy() {
		return MatchView{}, ErrMatchInProgress
	}
	m, err := s.practice.Start(uuid.NewString(), s.user.ID, id, seed)
	if err != nil {
		return MatchView{}, err
	}
	return s.launch(m, m.Recording().Seed, game.ModePractice), nil
}

// PracticeResults returns the last result of each practised game.
func (s *Session) PracticeResults() []practice.Result {
	return s.practice.Results()
}

// DismissTutorial marks a game's tutorial as seen and starts the match
// that was waiting on it, if any.
func (s *Session) DismissTutorial(id game.ID) (*MatchView, error) {
	if _, ok := s.lobby.reg.Get(id); !ok {
		return nil, game.ErrUnknownGame
	}
	s.tutorials.MarkSeen(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	lm := s.current
	if lm == nil || lm.started || lm.driver.Game() != id {
		return nil, nil
	}
	s.start(lm)
	v := s.view(lm)
	return &v, nil
}

// Match returns the current match if its ID matches.
func (s *Session) Match(matchID string) (MatchView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lm, err := s.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	return s.view(lm), nil
}

// Input applies a player action to the current match.
func (s *Session) Input(matchID string, a game.Action) (bool, error) {
	s.mu.Lock()
	lm, err := s.lookup(matchID)
	if err == nil && !lm.started {
		err = ErrTutorialPending
	}
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return lm.driver.Apply(a)
}

func (s *Session) lookup(matchID string) (*liveMatch, error) {
	if s.current == nil || s.current.driver.ID() != matchID {
		return nil, ErrMatchNotFound
	}
	return s.current, nil
}

// busy reports whether the current match blocks a new one. A practice match
// still waiting on its tutorial can be replaced. Callers hold s.mu.
func (s *Session) busy() bool {
	lm := s.current
	if lm == nil || lm.completed.Load() {
		return false
	}
	if !lm.started && lm.mode == game.ModePractice {
		return false
	}
	return true
}

// launch makes m current and starts it unless its tutorial is still unseen.
// Callers hold s.mu.
func (s *Session) launch(m *game.Match, seed int64, mode game.Mode) MatchView {
	if s.current != nil {
		s.current.driver.Stop()
	}
	lm := &liveMatch{
		driver: game.NewDriver(m, s.lobby.cfg.Frame, s.lobby.cfg.PublishEvery),
		mode:   mode,
		seed:   seed,
	}
	lm.driver.OnSnapshot = func(snap game.Snapshot) { s.onSnapshot(lm, snap) }
	s.current = lm

	if s.tutorials.Seen(m.Game()) {
		s.start(lm)
	}
	return s.view(lm)
}

func (s *Session) start(lm *liveMatch) {
	lm.started = true
	lm.driver.Start()
	s.lobby.obs.MatchStarted(lm.driver.Game(), lm.mode)
	s.lobby.record(game.EventTypeMatchStarted, lm.driver.ID(), s.user.ID, game.MatchStartedPayload{
		Game: lm.driver.Game(),
		Seed: lm.seed,
		Mode: lm.mode,
	})
}

func (s *Session) view(lm *liveMatch) MatchView {
	v := MatchView{
		MatchID:  lm.driver.ID(),
		Game:     lm.driver.Game(),
		Seed:     lm.seed,
		Mode:     lm.mode,
		Snapshot: lm.driver.Snapshot(),
	}
	if e, ok := s.lobby.reg.Get(v.Game); ok {
		v.Info = e.Info
		if !lm.started {
			t := e.Tutorial
			v.Tutorial = &t
		}
	}
	return v
}

// onSnapshot runs on the driver goroutine outside the driver's lock.
func (s *Session) onSnapshot(lm *liveMatch, snap game.Snapshot) {
	matchID := lm.driver.ID()
	s.lobby.pub.Publish(s.user.ID, EventMatchSnapshot, MatchEvent{MatchID: matchID, Snapshot: snap})
	if !snap.Done || !lm.completed.CompareAndSwap(false, true) {
		return
	}

	rec := lm.driver.Recording()
	s.lobby.obs.MatchCompleted(rec.Game, rec.Mode, rec.Score)
	s.lobby.record(game.EventTypeMatchCompleted, matchID, s.user.ID, rec)
	s.lobby.pub.Publish(s.user.ID, EventMatchCompleted, MatchEvent{MatchID: matchID, Snapshot: snap})

	if rec.Mode != game.ModeTournament {
		return
	}
	st, err := s.coord.CompleteRound(rec.Score)
	if err != nil {
		log.Printf("⚠️ Round result for %s dropped: %v", matchID, err)
		return
	}
	s.lobby.record(game.EventTypeRoundCompleted, matchID, s.user.ID, game.TournamentPayload{
		TournamentID:     st.TournamentID,
		Seed:             st.Seed,
		Round:            st.Round,
		PlayersRemaining: st.PlayersRemaining,
		Game:             st.RoundGame,
		GameSeed:         st.GameSeed,
		Score:            st.PlayerScore,
		Rank:             st.PlayerRank,
		Advances:         st.Advances,
	})
	s.lobby.pub.Publish(s.user.ID, EventTournament, st)
}

func (s *Session) close() {
	s.mu.Lock()
	if s.current != nil {
		s.current.driver.Stop()
	}
	s.mu.Unlock()
	s.unsub()
}
