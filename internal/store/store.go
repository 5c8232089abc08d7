// Package store defines the contract every persistent user-store backend must
// satisfy, plus the sentinel errors shared across implementations. The core
// correctness requirement on any backend is native single-record atomic
// conditional updates: credit and debit are each one store operation, never a
// read-modify-write sequence.
package store

import (
	"context"
	"errors"
	"math/big"

	"deposit-bridge-go/internal/models"
)

// Supported backend identifiers for StoreConfig.Backend.
const (
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrDuplicateDeposit = errors.New("deposit already recorded")
)

// UserStore is the persistent ledger store consumed by the Transactor.
//
// CreditBalance and DebitBalance must be atomic with respect to concurrent
// callers: CreditBalance is an unconditional increment, DebitBalance carries
// the balance >= amount precondition inside the same operation and returns
// the post-mutation user, or (nil, nil) when no record matched — the store
// cannot tell "insufficient funds" from "no such user" and does not try to.
type UserStore interface {
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
	GetUserById(ctx context.Context, id string) (*models.User, error)

	// InsertUser inserts a new user record, returning ErrUserExists when the
	// wallet address is already taken (unique index).
	InsertUser(ctx context.Context, user *models.User) error

	// CreditBalance atomically increments the balance of the user matching
	// the lower-cased wallet address and stamps updatedAt/lastFundedAt.
	// matched is false when no user record has that address.
	CreditBalance(ctx context.Context, address string, amountWei *big.Int) (matched bool, err error)

	// DebitBalance atomically decrements the balance of the user with the
	// given id iff the current balance covers amountWei.
	DebitBalance(ctx context.Context, id string, amountWei *big.Int) (*models.User, error)

	// RecordDeposit inserts the deposit keyed by tx hash, returning
	// ErrDuplicateDeposit on replay so crediting stays idempotent.
	RecordDeposit(ctx context.Context, dep models.DepositEvent) error

	Close(ctx context.Context) error
}
