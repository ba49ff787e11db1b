package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/resilience"
	"github.com/sells-group/ratio-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Store.RetryAttempts
	retry.InitialBackoff = time.Duration(cfg.Store.RetryBackoffMs) * time.Millisecond
	retry.OnRetry = resilience.RetryLogger("store")
	return store.WithRetry(st, retry), nil
}
