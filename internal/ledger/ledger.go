// Package ledger stores user balances and the append-only transaction
// history behind them. Every balance change is a compare-and-swap on the
// user's version plus one transaction row, applied atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate go tool mockgen -destination=./mocks/ledger_mock.go -package=mocks . Ledger

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("concurrent balance update")
	ErrInvalidDeposit    = errors.New("invalid deposit amount")
	ErrInvalidEntry      = errors.New("invalid ledger entry")
)

// TxType classifies a transaction.
type TxType string

const (
	TxEntry   TxType = "entry"
	TxPrize   TxType = "prize"
	TxDeposit TxType = "deposit"
)

// User is an account and its current balance.
type User struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName"`
	Balance     decimal.Decimal `json:"balance"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Transaction is one signed balance movement.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"userId"`
	Type           TxType          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	TournamentID   string          `json:"tournamentId,omitempty"`
	TournamentSeed int64           `json:"tournamentSeed,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Entry is a requested balance movement. Entry and prize movements carry a
// tournament ID and are applied at most once per user, tournament and type.
type Entry struct {
	UserID         string
	Type           TxType
	Amount         decimal.Decimal
	TournamentID   string
	TournamentSeed int64
}

// Change is pushed to subscribers after a movement commits.
type Change struct {
	User        User        `json:"user"`
	Transaction Transaction `json:"transaction"`
}

// Ledger is the balance store used by tournaments and the API.
type Ledger interface {
	// EnsureUser returns the user, creating it with a zero balance on first
	// sight.
	EnsureUser(ctx context.Context, id, email string) (User, error)
	// User returns the user record.
	User(ctx context.Context, id string) (User, error)
	// Balance returns the user's current balance.
	Balance(ctx context.Context, id string) (decimal.Decimal, error)
	// Apply moves the balance and appends the transaction atomically. A
	// repeated tournament movement returns the original transaction.
	Apply(ctx context.Context, e Entry) (Transaction, error)
	// Transactions lists the user's transactions, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	// Subscribe streams the user's committed changes until cancel is called.
	Subscribe(userID string) (<-chan Change, func())
}

// DepositAmounts are the amounts accepted by the test-mode deposit flow.
var DepositAmounts = []decimal.Decimal{
	decimal.NewFromInt(5),
	decimal.NewFromInt(10),
	decimal.NewFromInt(25),
	decimal.NewFromInt(50),
}

// ValidDeposit reports whether amount is one of DepositAmounts.
func ValidDeposit(amount decimal.Decimal) bool {
	for _, a := range DepositAmounts {
		if a.Equal(amount) {
			return true
		}
	}
	return false
}

// Deposit credits one of the allowed deposit amounts.
func Deposit(ctx context.Context, l Ledger, userID string, amount decimal.Decimal) (Transaction, error) {
	if !ValidDeposit(amount) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrInvalidDeposit, amount)
	}
	return l.Apply(ctx, Entry{UserID: userID, Type: TxDeposit, Amount: amount})
}

// DisplayName derives the default display name from an email address.
func DisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "Player"
	}
	return local
}

func (e Entry) validate() error {
	switch e.Type {
	case TxDeposit:
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: deposit must be positive", ErrInvalidEntry)
		}
	case TxPrize:
		if !e.Amount.IsPositive() || e.TournamentID == "" {
			return fmt.Errorf("%w: prize needs a positive amount and a tournament", ErrInvalidEntry)
		}
	case TxEntry:
		if !e.Amount.IsNegative() || e.TournamentID == "" {
			return fmt.Errorf("%w: entry needs a negative amount and a tournament", ErrInvalidEntry)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidEntry)
	}
	return nil
}

// idempotent reports whether the entry is keyed by tournament.
func (e Entry) idempotent() bool {
	return e.Type != TxDeposit
}
