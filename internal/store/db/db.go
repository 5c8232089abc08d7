// Package db opens and closes the configured user-store backend.
package db

import (
	"context"
	"fmt"

	"deposit-bridge-go/internal/models"
	"deposit-bridge-go/internal/store"
	"deposit-bridge-go/internal/store/mongodb"
	"deposit-bridge-go/internal/store/postgres"
)

// Open returns a connected store for the configured backend. The handle is
// owned by the process entry point and must be closed on shutdown; components
// receive it injected, never through package-level state.
func Open(ctx context.Context, cfg models.StoreConfig) (store.UserStore, error) {
	switch cfg.Backend {
	case store.BackendMongoDB:
		return mongodb.New(ctx, cfg)
	case store.BackendPostgres:
		return postgres.New(ctx, cfg)
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
