// Package storage selects the shipment store backend from configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/BearBump/ShipBox/internal/services/shipments"
	"github.com/BearBump/ShipBox/internal/storage/memshipment"
	"github.com/BearBump/ShipBox/internal/storage/pgshipment"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Store interface {
	shipments.Repository
	identity.UserRepository
	Ping(ctx context.Context) error
}

// Open returns the configured store and its close function. Postgres is retried until
// wait elapses so the services can start alongside the database container.
func Open(cfg *config.Config, wait time.Duration) (Store, func(), error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.ShipBox.StorageDriver)); driver {
	case DriverMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		return memshipment.New(), func() {}, nil
	case "", DriverPostgres:
		st, err := openPostgresWithRetry(cfg.Database.ConnString(), wait)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func openPostgresWithRetry(connString string, wait time.Duration) (*pgshipment.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgshipment.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
}
