package models

import (
	"math/big"
	"time"
)

// Account holds the off-chain balance embedded in a User. The balance is kept
// in the chain's smallest unit (wei) as an arbitrary-precision integer;
// conversion to ledger display units happens only at presentation boundaries.
type Account struct {
	BalanceWei *big.Int  `json:"balance_wei"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// User is an off-chain ledger account holder, keyed by the lower-cased wallet
// address. Created lazily on first lookup-or-create; never deleted.
type User struct {
	Id            string     `json:"id"`
	WalletAddress string     `json:"wallet_address"`
	CreatedAt     time.Time  `json:"created_at"`
	LastFundedAt  *time.Time `json:"last_funded_at,omitempty"`
	Account       Account    `json:"account"`
}

// DepositEvent is the transient observation of a qualifying treasury transfer.
// It is constructed per matching transaction, consumed by the credit call and
// then discarded; only its tx hash survives as the idempotency record.
type DepositEvent struct {
	From        string
	ValueWei    *big.Int
	TxHash      string
	BlockNumber uint64
}
