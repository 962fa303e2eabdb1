package pipeline

import (
	"context"
	"sort"

	"github.com/geolink/internal/blockstore"
	"github.com/geolink/internal/match"
	"github.com/geolink/internal/model"
)

// ReferencedKeys returns the sorted blocking keys used by any target period
func ReferencedKeys(targets []model.Target) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, t := range targets {
		for _, k := range t.BlockingKeys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// PreloadBlocks loads every block the targets refer to before dispatch.
// The returned map is never written again and is shared by all workers.
func PreloadBlocks(ctx context.Context, store blockstore.Store, targets []model.Target) (match.Blocks, error) {
	blocks, err := blockstore.LoadBlocks(ctx, store, ReferencedKeys(targets))
	if err != nil {
		return nil, err
	}
	return match.Blocks(blocks), nil
}
