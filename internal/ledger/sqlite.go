package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteOptions tunes the SQLite store.
type SQLiteOptions struct {
	BusyTimeout time.Duration
	MaxRetries  uint64
	RetryBase   time.Duration
}

// DefaultSQLiteOptions returns production defaults.
func DefaultSQLiteOptions() SQLiteOptions {
	return SQLiteOptions{
		BusyTimeout: 5 * time.Second,
		MaxRetries:  5,
		RetryBase:   10 * time.Millisecond,
	}
}

// SQLiteStore is the durable Ledger backed by a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	opts SQLiteOptions
	now  func() time.Time
	*notifier
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations.
func OpenSQLite(ctx context.Context, path string, opts SQLiteOptions) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite serialises writers anyway

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, opts: opts, now: time.Now, notifier: newNotifier()}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("ledger migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("ledger migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply ledger migrations: %w", err)
	}
	for _, r := range results {
		log.Printf("✅ Ledger migration %s applied in %v", r.Source.Path, r.Duration)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureUser(ctx context.Context, id, email string) (User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, balance, version, created_at)
		 VALUES (?, ?, ?, '0', 0, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, email, DisplayName(email), s.now().UTC().UnixNano())
	if err != nil {
		return User{}, fmt.Errorf("ensure user %s: %w", id, err)
	}
	return s.User(ctx, id)
}

func (s *SQLiteStore) User(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, balance, version, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	u, err := s.User(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// Apply retries busy and version conflicts with exponential backoff.
func (s *SQLiteStore) Apply(ctx context.Context, e Entry) (Transaction, error) {
	if err := e.validate(); err != nil {
		return Transaction{}, err
	}

	var (
		tx      Transaction
		change  *Change
		backoff = retry.WithMaxRetries(s.opts.MaxRetries, retry.NewExponential(s.opts.RetryBase))
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		tx, change, err = s.apply(ctx, e)
		if errors.Is(err, ErrConflict) || isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if change != nil {
		s.publish(*change)
	}
	return tx, nil
}

// apply runs one attempt. The returned change is nil when the movement was
// already recorded.
func (s *SQLiteStore) apply(ctx context.Context, e Entry) (Transaction, *Change, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transaction{}, nil, fmt.Errorf("begin: %w", err)
	}
	defer dbtx.Rollback()

	u, err := scanUser(dbtx.QueryRowContext(ctx,
		`SELECT id, email, display_name, balance, version, created_at FROM users WHERE id = ?`, e.UserID))
	if err != nil {
		return Transaction{}, nil, err
	}

	if e.idempotent() {
		existing, err := scanTransaction(dbtx.QueryRowContext(ctx,
			`SELECT id, user_id, type, amount, tournament_id, tournament_seed, created_at
			 FROM transactions WHERE user_id = ? AND tournament_id = ? AND type = ?`,
			e.UserID, e.TournamentID, string(e.Type)))
		if err == nil {
			return existing, nil, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, nil, err
		}
	}

	next := u.Balance.Add(e.Amount)
	if next.IsNegative() {
		return Transaction{}, nil, ErrInsufficientFunds
	}

	res, err := dbtx.ExecContext(ctx,
		`UPDATE users SET balance = ?, version = version + 1 WHERE id = ? AND version = ?`,
		next.String(), u.ID, u.Version)
	if err != nil {
		return Transaction{}, nil, fmt.Errorf("update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Transaction{}, nil, fmt.Errorf("update balance: %w", err)
	} else if n == 0 {
		return Transaction{}, nil, ErrConflict
	}

	tx := Transaction{
		ID:             uuid.New(),
		UserID:         e.UserID,
		Type:           e.Type,
		Amount:         e.Amount,
		TournamentID:   e.TournamentID,
		TournamentSeed: e.TournamentSeed,
		CreatedAt:      s.now().UTC(),
	}
	_, err = dbtx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, tournament_id, tournament_seed, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID.String(), tx.UserID, string(tx.Type), tx.Amount.String(), tx.TournamentID,
		tx.TournamentSeed, tx.CreatedAt.UnixNano(), u.Version+1)
	if err != nil {
		return Transaction{}, nil, fmt.Errorf("append transaction: %w", err)
	}
	if err := dbtx.Commit(); err != nil {
		return Transaction{}, nil, fmt.Errorf("commit: %w", err)
	}

	u.Balance = next
	u.Version++
	return tx, &Change{User: u, Transaction: tx}, nil
}

func (s *SQLiteStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount, tournament_id, tournament_seed, created_at
		 FROM transactions WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Subscribe(userID string) (<-chan Change, func()) {
	return s.subscribe(userID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u       User
		balance string
		created int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &balance, &u.Version, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	if u.Balance, err = decimal.NewFromString(balance); err != nil {
		return User{}, fmt.Errorf("user %s balance: %w", u.ID, err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		tx      Transaction
		id, typ string
		amount  string
		created int64
	)
	if err := row.Scan(&id, &tx.UserID, &typ, &amount, &tx.TournamentID, &tx.TournamentSeed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, err
		}
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	var err error
	if tx.ID, err = uuid.Parse(id); err != nil {
		return Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, fmt.Errorf("transaction amount: %w", err)
	}
	tx.Type = TxType(typ)
	tx.CreatedAt = time.Unix(0, created).UTC()
	return tx, nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
