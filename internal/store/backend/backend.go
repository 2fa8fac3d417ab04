// Package backend opens the Store selected by configuration.
package backend

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"

	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/config"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/store/firestore"
	"waterFastAPI/internal/store/memory"
	"waterFastAPI/internal/store/postgres"
)

// Open returns the configured store. app is only needed for firestore.
func Open(ctx context.Context, cfg config.Config, app *firebase.App, c clock.Clock) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return memory.New(c), nil
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.StoreFirestore:
		if app == nil {
			return nil, fmt.Errorf("firestore backend requires a Firebase app")
		}
		return firestore.Open(ctx, app, c)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
