package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credential is a request-scoped token authorizing a single metered call
// against a listed service. It is issued after a successful debit and is
// never persisted.
type Credential struct {
	Token     string    `json:"token"`
	UserId    string    `json:"user_id"`
	ServiceId string    `json:"service_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BalanceResponse reports a user balance in both units.
type BalanceResponse struct {
	WalletAddress string          `json:"wallet_address"`
	BalanceWei    string          `json:"balance_wei"`
	Balance       decimal.Decimal `json:"balance"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// QueryResponse is returned by the metered-query endpoint after a successful
// debit: the caller presents the credential to the listed service.
type QueryResponse struct {
	Credential Credential      `json:"credential"`
	Endpoint   string          `json:"endpoint"`
	Charged    decimal.Decimal `json:"charged"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ErrorResponse is the uniform gateway error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
