package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/store"
)

// openStore connects the configured backend and brings its schema up to
// date. Callers own the returned store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
