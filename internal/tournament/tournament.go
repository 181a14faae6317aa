// Package tournament runs the single-elimination bracket: paid entry,
// seeded game order, round progression and the prize credit.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"carnival/internal/game"
	"carnival/internal/ledger"
	"carnival/internal/rng"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds for entry fee")
	ErrInProgress        = errors.New("tournament already in progress")
	ErrWrongStatus       = errors.New("operation not allowed in current status")
	ErrInvalidConfig     = errors.New("invalid tournament config")
)

// Status is the bracket state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusWaiting    Status = "waiting"
	StatusPlaying    Status = "playing"
	StatusResults    Status = "results"
	StatusWinner     Status = "winner"
	StatusEliminated Status = "eliminated"
)

// Config is the bracket shape and money.
type Config struct {
	EntryFee   decimal.Decimal
	Prize      decimal.Decimal
	Players    int
	Qualifying []game.ID
	Finals     game.ID
	FinalsAt   int // players remaining when the finals game is used
}

// DefaultConfig returns a 32 player bracket with a 1.00 entry and 20.00
// prize.
func DefaultConfig() Config {
	return Config{
		EntryFee:   decimal.NewFromInt(1),
		Prize:      decimal.NewFromInt(20),
		Players:    32,
		Qualifying: []game.ID{game.WhackAMoleID, game.TargetShooterID, game.OrbBurstID, game.MemoryPathID},
		Finals:     game.TurboRaceID,
		FinalsAt:   2,
	}
}

// Validate checks the config describes a playable bracket.
func (c Config) Validate() error {
	if c.EntryFee.IsNegative() || !c.Prize.IsPositive() {
		return fmt.Errorf("%w: entry fee must be >= 0 and prize > 0", ErrInvalidConfig)
	}
	if c.Players < 2 || c.Players&(c.Players-1) != 0 {
		return fmt.Errorf("%w: players must be a power of two >= 2, got %d", ErrInvalidConfig, c.Players)
	}
	if len(c.Qualifying) == 0 {
		return fmt.Errorf("%w: no qualifying games", ErrInvalidConfig)
	}
	if c.FinalsAt < 2 {
		return fmt.Errorf("%w: finals must have at least 2 players", ErrInvalidConfig)
	}
	return nil
}

// State is a read-only view of the bracket.
type State struct {
	TournamentID     string          `json:"tournamentId,omitempty"`
	Seed             int64           `json:"seed"`
	Status           Status          `json:"status"`
	Round            int             `json:"round"`
	PlayersRemaining int             `json:"playersRemaining"`
	GameOrder        []game.ID       `json:"gameOrder,omitempty"`
	RoundGame        game.ID         `json:"roundGame,omitempty"`
	GameSeed         int64           `json:"gameSeed"`
	Finals           bool            `json:"finals"`
	PlayerScore      int             `json:"playerScore"`
	PlayerRank       int             `json:"playerRank"`
	Advances         bool            `json:"advances"`
	Standings        []game.Standing `json:"standings,omitempty"`
	PrizeCredited    bool            `json:"prizeCredited"`
	Prize            decimal.Decimal `json:"prize"`
	EntryFee         decimal.Decimal `json:"entryFee"`
}

// Coordinator owns one user's bracket. It is safe for concurrent use; ledger
// writes happen under the lock so a double submit cannot double charge.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	ledger   ledger.Ledger
	advancer Advancer
	userID   string
	state    State
}

// NewCoordinator creates an idle coordinator for userID.
func NewCoordinator(cfg Config, l ledger.Ledger, adv Advancer, userID string) *Coordinator {
	if adv == nil {
		adv = AlwaysAdvance{}
	}
	c := &Coordinator{cfg: cfg, ledger: l, advancer: adv, userID: userID}
	c.reset()
	return c
}

func (c *Coordinator) reset() {
	c.state = State{Status: StatusIdle, Prize: c.cfg.Prize, EntryFee: c.cfg.EntryFee}
}

// State returns a copy of the bracket.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Coordinator) snapshot() State {
	s := c.state
	s.GameOrder = append([]game.ID(nil), c.state.GameOrder...)
	s.Standings = append([]game.Standing(nil), c.state.Standings...)
	return s
}

// Enter pays the entry fee and seeds a new bracket. A balance below the fee
// fails with ErrInsufficientFunds before anything is written.
func (c *Coordinator) Enter(ctx context.Context, seed int64) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case StatusIdle, StatusWinner, StatusEliminated:
	default:
		return c.snapshot(), ErrInProgress
	}

	balance, err := c.ledger.Balance(ctx, c.userID)
	if err != nil {
		return c.snapshot(), fmt.Errorf("read balance: %w", err)
	}
	if balance.LessThan(c.cfg.EntryFee) {
		return c.snapshot(), ErrInsufficientFunds
	}

	id := uuid.NewString()
	if c.cfg.EntryFee.IsPositive() {
		_, err = c.ledger.Apply(ctx, ledger.Entry{
			UserID:         c.userID,
			Type:           ledger.TxEntry,
			Amount:         c.cfg.EntryFee.Neg(),
			TournamentID:   id,
			TournamentSeed: seed,
		})
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return c.snapshot(), ErrInsufficientFunds
		}
		if err != nil {
			return c.snapshot(), fmt.Errorf("charge entry fee: %w", err)
		}
	}

	r := rng.New(seed)
	order := rng.Shuffle(r, c.cfg.Qualifying)
	c.state = State{
		TournamentID:     id,
		Seed:             seed,
		Status:           StatusWaiting,
		Round:            1,
		PlayersRemaining: c.cfg.Players,
		GameOrder:        order,
		RoundGame:        order[0],
		GameSeed:         int64(r.NextInt(1, 999999)),
		Finals:           c.cfg.Players == c.cfg.FinalsAt,
		Prize:            c.cfg.Prize,
		EntryFee:         c.cfg.EntryFee,
	}
	if c.state.Finals {
		c.state.RoundGame = c.cfg.Finals
	}
	log.Printf("🎟️ %s entered tournament %s (seed %d)", c.userID, id, seed)
	return c.snapshot(), nil
}

// StartRound moves waiting to playing and returns the game to run.
func (c *Coordinator) StartRound() (game.ID, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusWaiting {
		return "", 0, fmt.Errorf("%w: start round while %s", ErrWrongStatus, c.state.Status)
	}
	c.state.Status = StatusPlaying
	return c.state.RoundGame, c.state.GameSeed, nil
}

// AbortRound moves playing back to waiting when the round's match could not
// be launched.
func (c *Coordinator) AbortRound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status == StatusPlaying {
		c.state.Status = StatusWaiting
	}
}

// CompleteRound records the round score and decides advancement.
func (c *Coordinator) CompleteRound(score int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusPlaying {
		return c.snapshot(), fmt.Errorf("%w: complete round while %s", ErrWrongStatus, c.state.Status)
	}
	res := c.advancer.Advance(Round{
		UserID:   c.userID,
		Seed:     c.state.Seed,
		Round:    c.state.Round,
		Players:  c.state.PlayersRemaining,
		Game:     c.state.RoundGame,
		GameSeed: c.state.GameSeed,
		Score:    score,
	})
	c.state.Status = StatusResults
	c.state.PlayerScore = score
	c.state.PlayerRank = res.Rank
	c.state.Advances = res.Advances
	c.state.Standings = res.Standings
	return c.snapshot(), nil
}

// NextRound leaves the results screen. Eliminated players end here; the
// last player standing is credited the prize exactly once. A failed credit
// leaves the bracket in results so the call can be retried.
func (c *Coordinator) NextRound(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusResults {
		return c.snapshot(), fmt.Errorf("%w: next round while %s", ErrWrongStatus, c.state.Status)
	}
	if !c.state.Advances {
		c.state.Status = StatusEliminated
		log.Printf("💀 %s eliminated in round %d of %s", c.userID, c.state.Round, c.state.TournamentID)
		return c.snapshot(), nil
	}

	players := c.state.PlayersRemaining / 2
	round := c.state.Round + 1
	r := rng.New(c.state.Seed + int64(round))

	if players == 1 {
		_, err := c.ledger.Apply(ctx, ledger.Entry{
			UserID:         c.userID,
			Type:           ledger.TxPrize,
			Amount:         c.cfg.Prize,
			TournamentID:   c.state.TournamentID,
			TournamentSeed: c.state.Seed,
		})
		if err != nil {
			return c.snapshot(), fmt.Errorf("credit prize: %w", err)
		}
		c.state.Status = StatusWinner
		c.state.PlayersRemaining = players
		c.state.PrizeCredited = true
		log.Printf("🏆 %s won tournament %s (+%s)", c.userID, c.state.TournamentID, c.cfg.Prize)
		return c.snapshot(), nil
	}

	c.state.Round = round
	c.state.PlayersRemaining = players
	c.state.Finals = players == c.cfg.FinalsAt
	if c.state.Finals {
		c.state.RoundGame = c.cfg.Finals
	} else {
		c.state.RoundGame = c.state.GameOrder[(round-1)%len(c.state.GameOrder)]
	}
	c.state.GameSeed = int64(r.NextInt(1, 999999))
	c.state.Status = StatusWaiting
	c.state.PlayerScore = 0
	c.state.PlayerRank = 0
	c.state.Advances = false
	c.state.Standings = nil
	return c.snapshot(), nil
}

// Abandon drops the bracket without refund.
func (c *Coordinator) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != StatusIdle {
		log.Printf("🚪 %s left tournament %s", c.userID, c.state.TournamentID)
	}
	c.reset()
}
