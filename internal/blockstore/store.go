package blockstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geolink/internal/blocking"
	"github.com/geolink/internal/model"
)

// ErrNotFound is returned when no artifact exists for a key
var ErrNotFound = errors.New("block artifact not found")

// Manifest records how a set of block artifacts was built
type Manifest struct {
	BufferDistance float64        `json:"buffer_distance_meters"`
	Keys           []string       `json:"keys"`
	Stats          blocking.Stats `json:"stats"`
	BuiltAt        time.Time      `json:"built_at"`
}

// Store persists one artifact per blocking key. Artifacts are independent,
// so a resumed run can load only the keys it still needs.
type Store interface {
	Put(ctx context.Context, b *model.Block) error
	Get(ctx context.Context, key string) (*model.Block, error)
	Keys(ctx context.Context) ([]string, error)
	PutManifest(ctx context.Context, m Manifest) error
	Manifest(ctx context.Context) (Manifest, error)
}

// SaveSet writes every block of a partition followed by its manifest
func SaveSet(ctx context.Context, s Store, set *blocking.Set, bufferDistance float64) (Manifest, error) {
	keys := set.Keys()
	for _, k := range keys {
		if err := s.Put(ctx, set.Blocks[k]); err != nil {
			return Manifest{}, fmt.Errorf("failed to store block %s: %w", k, err)
		}
	}

	m := Manifest{
		BufferDistance: bufferDistance,
		Keys:           keys,
		Stats:          set.Stats,
		BuiltAt:        time.Now().UTC(),
	}
	if err := s.PutManifest(ctx, m); err != nil {
		return Manifest{}, fmt.Errorf("failed to store manifest: %w", err)
	}
	return m, nil
}

// LoadBlocks reads the artifacts for keys into an in-memory map. Keys
// without an artifact are skipped so that targets referring to them resolve
// as unresolved instead of failing the run.
func LoadBlocks(ctx context.Context, s Store, keys []string) (map[string]*model.Block, error) {
	blocks := make(map[string]*model.Block, len(keys))
	missing := 0
	for _, k := range keys {
		if _, done := blocks[k]; done {
			continue
		}
		b, err := s.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			missing++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load block %s: %w", k, err)
		}
		blocks[k] = b
	}

	slog.Info("blocks loaded", slog.Int("loaded", len(blocks)), slog.Int("missing", missing))
	return blocks, nil
}
