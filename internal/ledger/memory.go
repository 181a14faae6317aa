package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Ledger for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
	txs   map[string][]Transaction
	now   func() time.Time
	*notifier
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		txs:      make(map[string][]Transaction),
		now:      time.Now,
		notifier: newNotifier(),
	}
}

func (m *MemoryStore) EnsureUser(ctx context.Context, id, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		return *u, nil
	}
	u := &User{
		ID:          id,
		Email:       email,
		DisplayName: DisplayName(email),
		Balance:     decimal.Zero,
		CreatedAt:   m.now().UTC(),
	}
	m.users[id] = u
	return *u, nil
}

func (m *MemoryStore) User(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return *u, nil
}

func (m *MemoryStore) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	u, err := m.User(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

func (m *MemoryStore) Apply(ctx context.Context, e Entry) (Transaction, error) {
	if err := e.validate(); err != nil {
		return Transaction{}, err
	}

	m.mu.Lock()
	u, ok := m.users[e.UserID]
	if !ok {
		m.mu.Unlock()
		return Transaction{}, fmt.Errorf("%w: %s", ErrUserNotFound, e.UserID)
	}
	if e.idempotent() {
		for _, tx := range m.txs[e.UserID] {
			if tx.Type == e.Type && tx.TournamentID == e.TournamentID {
				m.mu.Unlock()
				return tx, nil
			}
		}
	}
	next := u.Balance.Add(e.Amount)
	if next.IsNegative() {
		m.mu.Unlock()
		return Transaction{}, ErrInsufficientFunds
	}

	tx := Transaction{
		ID:             uuid.New(),
		UserID:         e.UserID,
		Type:           e.Type,
		Amount:         e.Amount,
		TournamentID:   e.TournamentID,
		TournamentSeed: e.TournamentSeed,
		CreatedAt:      m.now().UTC(),
	}
	u.Balance = next
	u.Version++
	m.txs[e.UserID] = append(m.txs[e.UserID], tx)
	change := Change{User: *u, Transaction: tx}
	m.mu.Unlock()

	m.publish(change)
	return tx, nil
}

func (m *MemoryStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.txs[userID]
	out := make([]Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryStore) Subscribe(userID string) (<-chan Change, func()) {
	return m.subscribe(userID)
}
