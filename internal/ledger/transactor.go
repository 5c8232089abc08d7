// Package ledger implements the account-mutation core: idempotent deposit
// crediting, the conditional debit protocol and lazy user creation. All
// cross-request safety is delegated to the store's single-record atomic
// operations; this package never holds locks of its own.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deposit-bridge-go/internal/metrics"
	"deposit-bridge-go/internal/models"
	"deposit-bridge-go/internal/store"
)

// Transactor exposes the two atomic balance primitives plus the idempotent
// user upsert. It is safe for concurrent use.
type Transactor struct {
	store store.UserStore
}

// NewTransactor wraps an injected store handle.
func NewTransactor(s store.UserStore) *Transactor {
	return &Transactor{store: s}
}

// FindOrCreateUser looks a user up by lower-cased wallet address, inserting a
// zero-balance record when absent. Two concurrent calls for a fresh address
// may both attempt the insert; the loser's duplicate-key failure is converted
// into a second lookup that returns the winner's record.
func (t *Transactor) FindOrCreateUser(ctx context.Context, address string) (*models.User, error) {
	addr := strings.ToLower(address)

	user, err := t.store.GetUserByAddress(ctx, addr)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("unable to look up user %s: %w", addr, err)
	}

	now := time.Now().UTC()
	user = &models.User{
		Id:            uuid.New().String(),
		WalletAddress: addr,
		CreatedAt:     now,
		Account: models.Account{
			BalanceWei: big.NewInt(0),
			UpdatedAt:  now,
		},
	}

	err = t.store.InsertUser(ctx, user)
	if err == nil {
		zap.L().Info("User created",
			zap.String("user_id", user.Id),
			zap.String("wallet_address", addr))
		return user, nil
	}
	if errors.Is(err, store.ErrUserExists) {
		// Lost the insert race; the winner's record is authoritative.
		return t.store.GetUserByAddress(ctx, addr)
	}

	return nil, fmt.Errorf("unable to create user %s: %w", addr, err)
}

// Credit applies a detected deposit to the sender's account: first the
// deposit is recorded under its tx hash (unique, so redelivered blocks are
// no-ops), then the balance is incremented in a single store operation.
// A deposit from an address with no user record is logged and dropped.
func (t *Transactor) Credit(ctx context.Context, dep models.DepositEvent) error {
	if dep.ValueWei == nil || dep.ValueWei.Sign() <= 0 {
		return fmt.Errorf("non-positive credit amount for tx %s", dep.TxHash)
	}

	from := strings.ToLower(dep.From)

	err := t.store.RecordDeposit(ctx, models.DepositEvent{
		From:        from,
		ValueWei:    dep.ValueWei,
		TxHash:      dep.TxHash,
		BlockNumber: dep.BlockNumber,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateDeposit) {
			zap.L().Info("Deposit already credited, skipping",
				zap.String("tx_hash", dep.TxHash),
				zap.Uint64("block_number", dep.BlockNumber))
			return nil
		}
		return fmt.Errorf("unable to record deposit %s: %w", dep.TxHash, err)
	}

	matched, err := t.store.CreditBalance(ctx, from, dep.ValueWei)
	if err != nil {
		return fmt.Errorf("unable to credit %s for tx %s: %w", from, dep.TxHash, err)
	}
	if !matched {
		metrics.CreditsDropped.WithLabelValues("unknown_address").Inc()
		zap.L().Warn("Deposit from address with no user record, dropping",
			zap.String("from", from),
			zap.String("tx_hash", dep.TxHash),
			zap.String("amount", ToLedgerUnits(dep.ValueWei).String()))
		return nil
	}

	metrics.CreditsApplied.Inc()
	zap.L().Info("Deposit credited",
		zap.String("from", from),
		zap.String("tx_hash", dep.TxHash),
		zap.Uint64("block_number", dep.BlockNumber),
		zap.String("amount", ToLedgerUnits(dep.ValueWei).String()))
	return nil
}

// Debit attempts to decrement the user's balance by amountWei through the
// store's conditional update. It never returns a Go error: every failure
// mode collapses into a denied result, with the variant preserved so callers
// and metrics can tell business denials from infrastructure trouble.
func (t *Transactor) Debit(ctx context.Context, userId string, amountWei *big.Int) models.DebitResult {
	result := t.debit(ctx, userId, amountWei)
	metrics.Debits.WithLabelValues(string(result.Status)).Inc()
	return result
}

func (t *Transactor) debit(ctx context.Context, userId string, amountWei *big.Int) models.DebitResult {
	if amountWei == nil || amountWei.Sign() <= 0 {
		return models.DebitResult{
			Status: models.DebitInfrastructureError,
			Err:    fmt.Errorf("non-positive debit amount"),
		}
	}

	user, err := t.store.DebitBalance(ctx, userId, amountWei)
	if err != nil {
		zap.L().Error("Debit failed on store error",
			zap.String("user_id", userId),
			zap.String("amount", ToLedgerUnits(amountWei).String()),
			zap.Error(err))
		return models.DebitResult{Status: models.DebitInfrastructureError, Err: err}
	}

	if user == nil {
		// No document matched: either the balance did not cover the amount
		// or the user does not exist. A follow-up lookup disambiguates for
		// diagnostics only; both outcomes are "debit denied".
		status := models.DebitInsufficientFunds
		if _, lookupErr := t.store.GetUserById(ctx, userId); errors.Is(lookupErr, store.ErrUserNotFound) {
			status = models.DebitUserNotFound
		}
		zap.L().Info("Debit denied",
			zap.String("user_id", userId),
			zap.String("amount", ToLedgerUnits(amountWei).String()),
			zap.String("reason", string(status)))
		return models.DebitResult{Status: status}
	}

	zap.L().Info("Debit applied",
		zap.String("user_id", userId),
		zap.String("amount", ToLedgerUnits(amountWei).String()),
		zap.String("new_balance", ToLedgerUnits(user.Account.BalanceWei).String()))
	return models.DebitResult{
		Status:        models.DebitApplied,
		NewBalanceWei: user.Account.BalanceWei,
	}
}

// GetUserByAddress is a read-only passthrough with address canonicalization.
func (t *Transactor) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	return t.store.GetUserByAddress(ctx, strings.ToLower(address))
}
