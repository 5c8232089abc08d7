package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"deposit-bridge-go/internal/models"
)

// Load reads the process configuration from the environment. The RPC URL,
// treasury address and store URI are hard requirements: a missing or invalid
// value fails the load, and callers treat that as fatal before any subsystem
// starts.
func Load() (*models.Config, error) {
	rpcURL := os.Getenv("ETH_RPC_URL")
	if rpcURL == "" {
		return nil, fmt.Errorf("ETH_RPC_URL is required")
	}

	treasury := os.Getenv("TREASURY_ADDRESS")
	if treasury == "" {
		return nil, fmt.Errorf("TREASURY_ADDRESS is required")
	}
	if !common.IsHexAddress(treasury) {
		return nil, fmt.Errorf("TREASURY_ADDRESS %q is not a valid chain address", treasury)
	}

	storeURI := os.Getenv("STORE_URI")
	if storeURI == "" {
		return nil, fmt.Errorf("STORE_URI is required")
	}

	pollInterval, err := getEnvDuration("CHAIN_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	connectTimeout, err := getEnvDuration("STORE_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	credentialTTL, err := getEnvDuration("CREDENTIAL_TTL", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Chain: models.ChainConfig{
			RPCURL:          rpcURL,
			TreasuryAddress: treasury,
			PollInterval:    pollInterval,
			RequestsPerSec:  getEnvInt("CHAIN_REQUESTS_PER_SEC", 10),
		},
		Store: models.StoreConfig{
			Backend:        getEnvString("STORE_BACKEND", "mongodb"),
			URI:            storeURI,
			Database:       getEnvString("STORE_DATABASE", "depositbridge"),
			ConnectTimeout: connectTimeout,
		},
		Watcher: models.WatcherConfig{
			MetricsAddr: getEnvString("WATCHER_METRICS_ADDR", ":9091"),
		},
		Gateway: models.GatewayConfig{
			ListenAddr:    getEnvString("GATEWAY_LISTEN_ADDR", ":8080"),
			ListingsFile:  getEnvString("LISTINGS_FILE", "listings.yaml"),
			CredentialTTL: credentialTTL,
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
