// Package store opens the configured p4p.Store backend.
package store

import (
	"context"
	"fmt"

	"github.com/fieldcrew/p4p-engine/config"
	"github.com/fieldcrew/p4p-engine/p4p"
	memstore "github.com/fieldcrew/p4p-engine/p4p/store"
	"github.com/fieldcrew/p4p-engine/store/postgres"
	"github.com/fieldcrew/p4p-engine/store/sqlite"
)

// Open returns the backend named by cfg.Driver. The caller closes it.
func Open(ctx context.Context, cfg config.StoreConfig) (p4p.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return memstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
