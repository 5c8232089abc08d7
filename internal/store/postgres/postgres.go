// Package postgres implements the user store on PostgreSQL. Balances are
// NUMERIC(78,0) wei, wide enough for any uint256 amount, and the debit
// precondition rides inside a single conditional UPDATE ... RETURNING.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"deposit-bridge-go/internal/models"
	"deposit-bridge-go/internal/store"
)

// Postgres class 23505: unique_violation.
const uniqueViolation = "23505"

// Compile-time check: *Store must satisfy store.UserStore.
var _ store.UserStore = (*Store)(nil)

// Store is a PostgreSQL-backed user store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL UNIQUE,
	balance_wei NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (balance_wei >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_funded_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deposits (
	tx_hash TEXT PRIMARY KEY,
	from_address TEXT NOT NULL,
	value_wei NUMERIC(78,0) NOT NULL,
	block_number BIGINT NOT NULL,
	credited_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const (
	queryGetUserByAddress = `
		SELECT id, wallet_address, balance_wei::text, created_at, last_funded_at, updated_at
		FROM users WHERE wallet_address = $1`
	queryGetUserById = `
		SELECT id, wallet_address, balance_wei::text, created_at, last_funded_at, updated_at
		FROM users WHERE id = $1`
	queryInsertUser = `
		INSERT INTO users (id, wallet_address, balance_wei, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $4)`
	queryCreditBalance = `
		UPDATE users
		SET balance_wei = balance_wei + $2::numeric, last_funded_at = now(), updated_at = now()
		WHERE wallet_address = $1`
	queryDebitBalance = `
		UPDATE users
		SET balance_wei = balance_wei - $2::numeric, updated_at = now()
		WHERE id = $1 AND balance_wei >= $2::numeric
		RETURNING id, wallet_address, balance_wei::text, created_at, last_funded_at, updated_at`
	queryInsertDeposit = `
		INSERT INTO deposits (tx_hash, from_address, value_wei, block_number)
		VALUES ($1, $2, $3::numeric, $4)`
)

// New opens the connection pool, pings it and ensures the schema.
func New(ctx context.Context, cfg models.StoreConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("unable to open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Postgres store initialized")
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

func (s *Store) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, queryGetUserByAddress, address))
}

func (s *Store) GetUserById(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, queryGetUserById, id))
}

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, queryInsertUser,
		user.Id, user.WalletAddress, user.Account.BalanceWei.String(), user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrUserExists
		}
		return fmt.Errorf("unable to insert user: %w", err)
	}
	return nil
}

func (s *Store) CreditBalance(ctx context.Context, address string, amountWei *big.Int) (bool, error) {
	res, err := s.db.ExecContext(ctx, queryCreditBalance, address, amountWei.String())
	if err != nil {
		return false, fmt.Errorf("unable to credit balance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to read rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Store) DebitBalance(ctx context.Context, id string, amountWei *big.Int) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryDebitBalance, id, amountWei.String()))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Precondition failed or no such user; denied either way.
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) RecordDeposit(ctx context.Context, dep models.DepositEvent) error {
	_, err := s.db.ExecContext(ctx, queryInsertDeposit,
		dep.TxHash, dep.From, dep.ValueWei.String(), int64(dep.BlockNumber))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrDuplicateDeposit
		}
		return fmt.Errorf("unable to record deposit: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user       models.User
		balanceStr string
		lastFunded sql.NullTime
	)

	err := row.Scan(&user.Id, &user.WalletAddress, &balanceStr,
		&user.CreatedAt, &lastFunded, &user.Account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("unable to scan user row: %w", err)
	}

	balance, ok := new(big.Int).SetString(balanceStr, 10)
	if !ok {
		return nil, fmt.Errorf("non-integer balance %q for user %s", balanceStr, user.Id)
	}
	user.Account.BalanceWei = balance

	if lastFunded.Valid {
		t := lastFunded.Time
		user.LastFundedAt = &t
	}

	return &user, nil
}
