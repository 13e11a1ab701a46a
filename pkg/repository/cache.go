package repository

import (
	"math"
	"slices"
	"sync"

	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// DefaultCacheSize is the number of prefixes whose results are kept.
const DefaultCacheSize = 2048

// PrefixCache keeps recent prefix query results, keyed by the lowercased
// prefix in a patricia trie. Keeping the keys in a trie lets a changed name
// drop exactly the cached prefixes it falls under.
type PrefixCache struct {
	results     *patricia.Trie
	accessTime  map[string]int64
	accessCount int64
	hits        int64
	misses      int64
	maxEntries  int
	mu          sync.Mutex
}

// NewPrefixCache returns a cache holding at most maxEntries prefixes. A
// non-positive size returns nil, and a nil *PrefixCache never hits.
func NewPrefixCache(maxEntries int) *PrefixCache {
	if maxEntries <= 0 {
		return nil
	}
	return &PrefixCache{
		results:    patricia.NewTrie(),
		accessTime: make(map[string]int64, maxEntries),
		maxEntries: maxEntries,
	}
}

// Get returns a copy of the cached results for key.
func (pc *PrefixCache) Get(key string) ([]city.City, bool) {
	if pc == nil {
		return nil, false
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	item := pc.results.Get(patricia.Prefix(key))
	if item == nil {
		pc.misses++
		return nil, false
	}
	pc.hits++
	pc.markAccessed(key)
	return slices.Clone(item.([]city.City)), true
}

// Put stores a copy of results under key, evicting the least recently used
// prefix when full.
func (pc *PrefixCache) Put(key string, results []city.City) {
	if pc == nil || key == "" {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if _, exists := pc.accessTime[key]; !exists && len(pc.accessTime) >= pc.maxEntries {
		pc.evictLRU()
	}
	stored := slices.Clone(results)
	if stored == nil {
		stored = []city.City{}
	}
	pc.results.Set(patricia.Prefix(key), stored)
	pc.markAccessed(key)
}

// Invalidate drops every cached prefix of name (name included) and returns
// how many were dropped.
func (pc *PrefixCache) Invalidate(name string) int {
	if pc == nil || name == "" {
		return 0
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	var stale []string
	err := pc.results.VisitPrefixes(patricia.Prefix(name), func(p patricia.Prefix, _ patricia.Item) error {
		stale = append(stale, string(p))
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting cached prefixes of %q: %v", name, err)
	}
	for _, key := range stale {
		pc.results.Delete(patricia.Prefix(key))
		delete(pc.accessTime, key)
	}
	if len(stale) > 0 {
		log.Debugf("Invalidated %d cached prefixes of '%s'", len(stale), name)
	}
	return len(stale)
}

// Reset empties the cache.
func (pc *PrefixCache) Reset() {
	if pc == nil {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.results = patricia.NewTrie()
	pc.accessTime = make(map[string]int64, pc.maxEntries)
}

// Stats returns cache counters.
func (pc *PrefixCache) Stats() map[string]int {
	if pc == nil {
		return map[string]int{"cacheEntries": 0, "maxCacheEntries": 0, "cacheHits": 0, "cacheMisses": 0}
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return map[string]int{
		"cacheEntries":    len(pc.accessTime),
		"maxCacheEntries": pc.maxEntries,
		"cacheHits":       int(pc.hits),
		"cacheMisses":     int(pc.misses),
	}
}

func (pc *PrefixCache) markAccessed(key string) {
	pc.accessCount++
	pc.accessTime[key] = pc.accessCount
}

func (pc *PrefixCache) evictLRU() {
	var oldestKey string
	var oldestTime int64 = math.MaxInt64

	for key, accessTime := range pc.accessTime {
		if accessTime < oldestTime {
			oldestTime = accessTime
			oldestKey = key
		}
	}

	if oldestKey != "" {
		pc.results.Delete(patricia.Prefix(oldestKey))
		delete(pc.accessTime, oldestKey)
		log.Debugf("Evicted prefix '%s' from cache", oldestKey)
	}
}
