package importer

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"

	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/scanner"
)

// indexTTL bounds how long a library's asin->path index is trusted
// before Contains re-walks the filesystem; the library only changes
// when the import executor or a manual reorganize runs, both of which
// are far rarer than request creation.
const indexTTL = 5 * time.Minute

const indexCacheKey = "index"

// LibraryIndex satisfies request.LibraryChecker by walking the
// configured library root for metadata.json sidecars (§4.L
// find_by_identifier/map_by_identifier) and caching the resulting
// asin->path map for indexTTL.
type LibraryIndex struct {
	cfg   *config.Store
	cache *ttlcache.Cache[string, map[string]string]
}

// NewLibraryIndex wires a LibraryIndex against cfg's configured library
// root.
func NewLibraryIndex(cfg *config.Store) *LibraryIndex {
	return &LibraryIndex{
		cfg:   cfg,
		cache: ttlcache.New(ttlcache.Options[string, map[string]string]{}.SetDefaultTTL(indexTTL)),
	}
}

// Contains reports whether asin already has a copy on disk under the
// library root.
func (l *LibraryIndex) Contains(_ context.Context, asin string) (bool, error) {
	root := l.cfg.LibraryRoot()
	if root == "" {
		return false, nil
	}

	index, ok := l.cache.Get(indexCacheKey)
	if !ok {
		built, err := scanner.MapByIdentifier(root)
		if err != nil {
			return false, err
		}
		index = built
		l.cache.Set(indexCacheKey, index, ttlcache.DefaultTTL)
	}

	_, found := index[asin]
	return found, nil
}
