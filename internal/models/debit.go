package models

import "math/big"

// DebitStatus tags the outcome of a debit attempt. Callers branch on
// Applied() for control flow; the remaining variants exist for diagnostics
// and metrics, all of them equally mean "debit denied".
type DebitStatus string

const (
	DebitApplied             DebitStatus = "applied"
	DebitInsufficientFunds   DebitStatus = "insufficient_funds"
	DebitUserNotFound        DebitStatus = "user_not_found"
	DebitInfrastructureError DebitStatus = "infrastructure_error"
)

// DebitResult is the tagged outcome of Transactor.Debit. NewBalanceWei is set
// only when the debit was applied. Err carries the underlying cause for the
// infrastructure variant and is never required for control flow.
type DebitResult struct {
	Status        DebitStatus
	NewBalanceWei *big.Int
	Err           error
}

// Applied reports whether the balance was actually decremented.
func (r DebitResult) Applied() bool {
	return r.Status == DebitApplied
}
