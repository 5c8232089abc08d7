package models

import "math/big"

// Transaction is the reduced view of an on-chain transaction the watcher
// cares about. From is empty when the sender could not be recovered, To is
// empty for contract creations; both cases are skipped by the filter.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
}

// Block is the read-only view of a mined block with full transaction detail.
type Block struct {
	Number       uint64
	Transactions []Transaction
}
