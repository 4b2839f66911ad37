package knowledge

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/minio/highwayhash"
)

// maxCacheEntries caps the cache before it is cleared wholesale. Search
// results are small and any write invalidates everything anyway, so a
// simple clear beats per-entry eviction bookkeeping.
const maxCacheEntries = 1024

// cacheHashKey must be exactly 32 bytes for HighwayHash.
var cacheHashKey = []byte("lorebase-query-cache-hash-key-32")

type cacheEntry struct {
	// key is the full canonical key, kept to rule out hash collisions.
	key     string
	results []SearchResult
}

// queryCache memoizes search results keyed by the canonical query string.
// Entries survive until a write to the knowledge base invalidates them.
type queryCache struct {
	mu      sync.RWMutex
	entries map[uint64]cacheEntry
	hits    atomic.Int64
}

func newQueryCache() *queryCache {
	return &queryCache{
		entries: make(map[uint64]cacheEntry),
	}
}

// get returns a copy of the cached results for key, if present.
func (c *queryCache) get(key string) ([]SearchResult, bool) {
	sum := highwayhash.Sum64([]byte(key), cacheHashKey)

	c.mu.RLock()
	entry, ok := c.entries[sum]
	c.mu.RUnlock()

	if !ok || entry.key != key {
		return nil, false
	}
	c.hits.Add(1)
	return copyResults(entry.results), true
}

// put stores a copy of results under key.
func (c *queryCache) put(key string, results []SearchResult) {
	sum := highwayhash.Sum64([]byte(key), cacheHashKey)
	stored := copyResults(results)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= maxCacheEntries {
		clear(c.entries)
	}
	c.entries[sum] = cacheEntry{key: key, results: stored}
}

// invalidate drops every entry. Called after any document mutation.
func (c *queryCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *queryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *queryCache) hitCount() int64 {
	return c.hits.Load()
}

// cacheKey builds the canonical key for a query under a resolved search
// configuration. Filter pairs are sorted so the key is order-independent.
func cacheKey(query string, cfg searchConfig) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte(0x1f)
	b.WriteString(strconv.Itoa(cfg.topK))
	b.WriteByte(0x1f)
	b.WriteString(strconv.FormatFloat(float64(cfg.minSimilarity), 'f', -1, 32))

	if len(cfg.filter) > 0 {
		keys := make([]string, 0, len(cfg.filter))
		for k := range cfg.filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(0x1f)
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(cfg.filter[k])
		}
	}
	return b.String()
}

// copyResults clones the slice and each result's metadata map so cached
// state and caller-visible results never alias.
func copyResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	out := make([]SearchResult, len(results))
	copy(out, results)
	for i, r := range results {
		if r.Metadata == nil {
			continue
		}
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out[i].Metadata = meta
	}
	return out
}
