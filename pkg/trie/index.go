/*
Package trie implements the prefix index behind cityserve.

Every lowercased city name is spelled one rune per node from a shared root, so
names with a common prefix share nodes. Nodes live in a flat arena and point at
their parent by slot index, which keeps removal an upward walk over integers
instead of a graph of cyclic pointers.

A terminal node marks the end of a stored name; the records for that name sit
in a side map keyed by the lowercased name, so several places called
"Alandur" are all returned for one name.

	ix := trie.New()
	ix.Insert(city.City{ID: 1279064, Country: "IN", Name: "Alandur"})
	matches := ix.FindWithPrefix("Al")

Children are visited in ascending rune order. Results are therefore grouped by
name and ordered by the lowercased names' runes; records sharing a name keep
their insertion order.

An Index is not safe for concurrent use. Callers serialize writes and must not
read while a write is in progress.
*/
package trie

import (
	"slices"
	"strings"

	"github.com/bastiangx/cityserve/pkg/city"
)

// Index is a character trie over city names plus the name to records map.
type Index struct {
	nodes []node
	free  []int32
	names map[string][]city.City
	count int
}

// Stats describes the size of an Index.
type Stats struct {
	Records   int
	Names     int
	Nodes     int
	FreeSlots int
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		nodes: []node{{parent: noParent}},
		names: make(map[string][]city.City),
	}
}

// Canonical returns the form names and prefixes are indexed under. Invalid
// UTF-8 is replaced so that a name re-spelled from its runes matches its key.
func Canonical(s string) string {
	return strings.ToValidUTF8(strings.ToLower(s), "\uFFFD")
}

// Len returns the number of records held, counting every record that shares a name.
func (ix *Index) Len() int {
	return ix.count
}

// IsEmpty reports whether no records are held.
func (ix *Index) IsEmpty() bool {
	return ix.count == 0
}

// Insert adds c under its lowercased name. Records with an empty name are ignored.
func (ix *Index) Insert(c city.City) {
	if c.Name == "" {
		return
	}
	key := Canonical(c.Name)

	cur := rootSlot
	for _, r := range key {
		next, ok := ix.nodes[cur].child(r)
		if !ok {
			next = ix.addChild(cur, r)
		}
		cur = next
	}
	ix.nodes[cur].terminal = true
	ix.names[key] = append(ix.names[key], c)
	ix.count++
}

// Contains reports whether any record is stored under c's name, compared
// case-insensitively. Use ContainsExact to check for c itself.
func (ix *Index) Contains(c city.City) bool {
	if c.Name == "" {
		return false
	}
	_, ok := ix.terminalOf(Canonical(c.Name))
	return ok
}

// ContainsExact reports whether c itself is stored.
func (ix *Index) ContainsExact(c city.City) bool {
	if !ix.Contains(c) {
		return false
	}
	return slices.Contains(ix.names[Canonical(c.Name)], c)
}

// Remove deletes the first stored record equal to c and reports whether one
// was found. When the last record for a name goes, the name's nodes are
// pruned up to the closest ancestor that is still needed by another name.
func (ix *Index) Remove(c city.City) bool {
	if c.Name == "" {
		return false
	}
	key := Canonical(c.Name)
	slot, ok := ix.terminalOf(key)
	if !ok {
		return false
	}

	records := ix.names[key]
	i := slices.Index(records, c)
	if i < 0 {
		return false
	}
	ix.count--

	records = slices.Delete(records, i, i+1)
	if len(records) > 0 {
		ix.names[key] = records
		return true
	}

	delete(ix.names, key)
	ix.nodes[slot].terminal = false
	if ix.nodes[slot].isLeaf() {
		ix.prune(slot)
	}
	return true
}

// Lookup returns the records stored under exactly name.
func (ix *Index) Lookup(name string) []city.City {
	return slices.Clone(ix.names[Canonical(name)])
}

// FindWithPrefix returns every record whose lowercased name starts with the
// lowercased prefix. No match gives an empty, non-nil slice.
func (ix *Index) FindWithPrefix(prefix string) []city.City {
	results := []city.City{}
	_ = ix.VisitSubtree(prefix, func(_ string, cities []city.City) error {
		results = append(results, cities...)
		return nil
	})
	return results
}

// All returns every record, in traversal order.
func (ix *Index) All() []city.City {
	results := make([]city.City, 0, ix.count)
	_ = ix.VisitSubtree("", func(_ string, cities []city.City) error {
		results = append(results, cities...)
		return nil
	})
	return results
}

// Stats returns size information.
func (ix *Index) Stats() Stats {
	return Stats{
		Records:   ix.count,
		Names:     len(ix.names),
		Nodes:     len(ix.nodes) - len(ix.free),
		FreeSlots: len(ix.free),
	}
}

func (ix *Index) terminalOf(key string) (int32, bool) {
	slot, ok := ix.walk(key)
	if !ok || !ix.nodes[slot].terminal {
		return 0, false
	}
	return slot, true
}
