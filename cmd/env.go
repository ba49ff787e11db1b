package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/pipeline"
	"github.com/sells-group/ratio-cli/internal/store"
)

// engineEnv holds the catalog, processor and optional store needed by the
// processing commands.
type engineEnv struct {
	Catalog   *catalog.Catalog
	Processor *pipeline.Processor
	Store     store.Store // nil unless requested
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine validates config for mode, loads the catalog and builds the
// processor. withStore also opens and migrates the store. Callers should
// defer env.Close().
func initEngine(ctx context.Context, mode string, withStore bool) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Engine.CatalogPath)
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}
	env := &engineEnv{
		Catalog:   cat,
		Processor: pipeline.NewProcessor(cat, cfg.Engine),
	}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
	}
	return env, nil
}
