/*
Package repository loads the city list once and serves prefix queries over it.

A Repository is built around a Source (a JSON dump, a snapshot, or an
in-memory slice). Load decodes the source, sorts the records by name and then
country code, and bulk inserts them into a fresh trie.Index. A snapshot file
comes back as a ready index and is only sorted for the listing. The new index is
published with a single assignment only after every step succeeded, so readers
never see a half built index and a failed Load leaves the repository
uninitialized.

	repo := repository.New(repository.NewFileSource("data/cities.json"))
	if err := repo.Load(); err != nil {
		log.Fatal(err)
	}
	cities, err := repo.Query("Al")

Queries issued before a successful Load fail with ErrNotInitialized rather
than returning an empty result.

The empty prefix lists every city in load order (name, then country). A
non-empty prefix returns matches in trie order: grouped by name, names in
ascending rune order of their lowercased form. The two orders are not meant to
agree.

A Repository is safe for concurrent use: queries share a read lock, while
Insert, Remove and the publishing step of Load take the write lock.
*/
package repository

import (
	"cmp"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bastiangx/cityserve/internal/observability"
	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/bastiangx/cityserve/pkg/trie"
	"github.com/charmbracelet/log"
)

// Repository owns one trie.Index for its whole lifetime.
type Repository struct {
	source  Source
	index   *trie.Index
	sorted  []city.City
	cache   *PrefixCache
	metrics *observability.Metrics
	logger  *log.Logger
	mu      sync.RWMutex
}

// Stats combines index and cache sizes.
type Stats struct {
	trie.Stats
	Cache map[string]int
}

// Option configures a Repository.
type Option func(*Repository)

// WithCacheSize bounds the prefix cache. Zero disables it.
func WithCacheSize(n int) Option {
	return func(r *Repository) {
		r.cache = NewPrefixCache(n)
	}
}

// WithMetrics reports loads, queries and mutations to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// New returns an unloaded Repository reading from src.
func New(src Source, opts ...Option) *Repository {
	r := &Repository{
		source: src,
		cache:  NewPrefixCache(DefaultCacheSize),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// compareCities orders by name, then country code, byte-wise.
func compareCities(a, b city.City) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Country, b.Country)
}

// SortCities returns a sorted copy of cities without nameless records.
// Ties keep their input order.
func SortCities(cities []city.City) []city.City {
	sorted := make([]city.City, 0, len(cities))
	for _, c := range cities {
		if c.Name != "" {
			sorted = append(sorted, c)
		}
	}
	slices.SortStableFunc(sorted, compareCities)
	return sorted
}

// Load decodes the source and publishes a fresh index. It succeeds at most once.
func (r *Repository) Load() error {
	if r.Loaded() {
		return ErrAlreadyLoaded
	}

	start := time.Now()
	index, sorted, err := r.build()
	if err != nil {
		derr := &DecodeError{Source: r.source.Name(), Err: err}
		r.metrics.ObserveLoad(derr, time.Since(start), 0)
		r.logger.Errorf("Load failed: %v", derr)
		return derr
	}

	r.mu.Lock()
	if r.index != nil {
		r.mu.Unlock()
		return ErrAlreadyLoaded
	}
	r.index, r.sorted = index, sorted
	r.cache.Reset()
	r.mu.Unlock()

	elapsed := time.Since(start)
	r.metrics.ObserveLoad(nil, elapsed, index.Len())
	stats := index.Stats()
	r.logger.Debugf("Loaded %d cities (%d names, %d nodes) from %s in %v",
		stats.Records, stats.Names, stats.Nodes, r.source.Name(), elapsed)
	return nil
}

// build produces the index and the sorted listing from the source. A prebuilt
// index is taken as is.
func (r *Repository) build() (*trie.Index, []city.City, error) {
	if is, ok := r.source.(IndexSource); ok {
		index, err := is.Index()
		if err != nil {
			return nil, nil, err
		}
		if index != nil {
			return index, SortCities(index.All()), nil
		}
	}

	cities, err := r.source.Cities()
	if err != nil {
		return nil, nil, err
	}
	sorted := SortCities(cities)
	if skipped := len(cities) - len(sorted); skipped > 0 {
		r.logger.Debugf("Skipped %d cities without a name", skipped)
	}

	index := trie.New()
	for _, c := range sorted {
		index.Insert(c)
	}
	return index, sorted, nil
}

// Loaded reports whether Load has succeeded.
func (r *Repository) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index != nil
}

// Query returns every city for an empty prefix, otherwise ByPrefix(prefix).
func (r *Repository) Query(prefix string) ([]city.City, error) {
	if prefix == "" {
		return r.All()
	}
	return r.ByPrefix(prefix)
}

// All returns every city in load order.
func (r *Repository) All() ([]city.City, error) {
	start := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return nil, ErrNotInitialized
	}
	result := slices.Clone(r.sorted)
	if result == nil {
		result = []city.City{}
	}
	r.metrics.ObserveQuery("all", time.Since(start), len(result))
	return result, nil
}

// ByPrefix returns the cities whose name starts with prefix, ignoring case,
// in trie order.
func (r *Repository) ByPrefix(prefix string) ([]city.City, error) {
	start := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return nil, ErrNotInitialized
	}

	key := trie.Canonical(prefix)
	if key == "" {
		result := r.index.FindWithPrefix(key)
		r.metrics.ObserveQuery("prefix", time.Since(start), len(result))
		return result, nil
	}

	if cached, ok := r.cache.Get(key); ok {
		r.metrics.ObserveCache(true)
		r.metrics.ObserveQuery("prefix", time.Since(start), len(cached))
		return cached, nil
	}
	if r.cache != nil {
		r.metrics.ObserveCache(false)
	}

	result := r.index.FindWithPrefix(key)
	r.cache.Put(key, result)
	r.metrics.ObserveQuery("prefix", time.Since(start), len(result))
	return result, nil
}

// ByName returns the cities named exactly name, ignoring case.
func (r *Repository) ByName(name string) ([]city.City, error) {
	start := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return nil, ErrNotInitialized
	}
	result := r.index.Lookup(name)
	if result == nil {
		result = []city.City{}
	}
	r.metrics.ObserveQuery("exact", time.Since(start), len(result))
	return result, nil
}

// Insert adds c after load. A city without a name is ignored.
func (r *Repository) Insert(c city.City) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return ErrNotInitialized
	}
	if c.Name == "" {
		r.metrics.ObserveMutation("insert", false, r.index.Len())
		return nil
	}

	r.index.Insert(c)
	i := sort.Search(len(r.sorted), func(i int) bool {
		return compareCities(r.sorted[i], c) > 0
	})
	r.sorted = slices.Insert(r.sorted, i, c)
	r.cache.Invalidate(trie.Canonical(c.Name))

	r.metrics.ObserveMutation("insert", true, r.index.Len())
	r.logger.Debugf("Inserted %s (%d)", c, c.ID)
	return nil
}

// Remove deletes one record equal to c and reports whether it was present.
func (r *Repository) Remove(c city.City) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return false, ErrNotInitialized
	}
	if !r.index.Remove(c) {
		r.metrics.ObserveMutation("remove", false, r.index.Len())
		return false, nil
	}

	lo := sort.Search(len(r.sorted), func(i int) bool {
		return compareCities(r.sorted[i], c) >= 0
	})
	for i := lo; i < len(r.sorted) && compareCities(r.sorted[i], c) == 0; i++ {
		if r.sorted[i] == c {
			r.sorted = slices.Delete(r.sorted, i, i+1)
			break
		}
	}
	r.cache.Invalidate(trie.Canonical(c.Name))

	r.metrics.ObserveMutation("remove", true, r.index.Len())
	r.logger.Debugf("Removed %s (%d)", c, c.ID)
	return true, nil
}

// Snapshot writes a msgpack archive of the current index to w.
func (r *Repository) Snapshot(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return ErrNotInitialized
	}
	return r.index.WriteSnapshot(w)
}

// Stats returns index and cache sizes.
func (r *Repository) Stats() (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.index == nil {
		return Stats{}, ErrNotInitialized
	}
	return Stats{Stats: r.index.Stats(), Cache: r.cache.Stats()}, nil
}
