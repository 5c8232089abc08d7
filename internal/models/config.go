package models

import "time"

// ChainConfig configures the RPC endpoint connection and the block poller.
type ChainConfig struct {
	RPCURL          string
	TreasuryAddress string
	PollInterval    time.Duration
	RequestsPerSec  int
}

// StoreConfig selects and configures the persistent user store backend.
type StoreConfig struct {
	Backend        string // "mongodb" or "postgres"
	URI            string
	Database       string // mongodb database name
	ConnectTimeout time.Duration
}

// WatcherConfig configures the deposit watcher binary's own endpoints.
type WatcherConfig struct {
	MetricsAddr string
}

// GatewayConfig configures the metered-API gateway service.
type GatewayConfig struct {
	ListenAddr    string
	ListingsFile  string
	CredentialTTL time.Duration
}

// Config is the full process configuration loaded from the environment.
type Config struct {
	Chain   ChainConfig
	Store   StoreConfig
	Watcher WatcherConfig
	Gateway GatewayConfig
}
