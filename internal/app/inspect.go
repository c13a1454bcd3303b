package app

import (
	"context"
	"fmt"
	"io"

	"github.com/deusflow/sitewatch/internal/config"
	"github.com/deusflow/sitewatch/internal/storage"
)

// InspectState prints what the store remembers for every source: the
// recorded hash, or the size of the sent set and its most recent entries.
func InspectState(ctx context.Context, w io.Writer, store storage.Store, sources []config.Source, maxItems, recent int) error {
	fmt.Fprintf(w, "State of %d sources:\n", len(sources))
	for _, src := range sources {
		st, err := store.Load(ctx, src.Name, maxItems)
		if err != nil {
			return fmt.Errorf("load %s: %w", src.Name, err)
		}

		if src.Kind == config.KindHash {
			hash := st.Hash
			if hash == "" {
				hash = "(no baseline yet)"
			}
			fmt.Fprintf(w, "\n%s [hash] %s\n  hash: %s\n", src.Name, src.URL, hash)
			continue
		}

		ids := st.Sent.IDs()
		fmt.Fprintf(w, "\n%s [%s] %s\n  sent: %d/%d\n", src.Name, src.Kind, src.URL, len(ids), st.Sent.Cap())
		for i := len(ids) - 1; i >= 0 && i >= len(ids)-recent; i-- {
			fmt.Fprintf(w, "  - %s\n", ids[i])
		}
	}
	return nil
}

// Inspect prints the state of the configured sources.
func (a *App) Inspect(ctx context.Context, w io.Writer, recent int) error {
	return InspectState(ctx, w, a.store, a.cfg.Sources, a.cfg.MaxSentItems, recent)
}
