package trie

import (
	"errors"
	"slices"
	"unicode/utf8"

	"github.com/bastiangx/cityserve/pkg/city"
)

// SkipSubtree can be returned by a VisitorFunc to skip the names below the
// one just visited.
var SkipSubtree = errors.New("skip subtree")

// VisitorFunc is called once per stored name with the records under it. The
// slice must not be modified, and the index must not be changed during a visit.
type VisitorFunc func(name string, cities []city.City) error

// VisitSubtree calls visitor for every stored name starting with prefix,
// depth first: a node's own name before its descendants, children in
// ascending rune order. A visitor error other than SkipSubtree stops the
// walk and is returned.
func (ix *Index) VisitSubtree(prefix string, visitor VisitorFunc) error {
	key := Canonical(prefix)
	slot, ok := ix.walk(key)
	if !ok {
		return nil
	}
	return ix.visit(slot, []byte(key), visitor)
}

func (ix *Index) visit(slot int32, name []byte, visitor VisitorFunc) error {
	if ix.nodes[slot].terminal {
		key := string(name)
		err := visitor(key, slices.Clip(ix.names[key]))
		if errors.Is(err, SkipSubtree) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	for _, e := range ix.nodes[slot].children {
		// Siblings overwrite the same tail of name; string(name) above copies.
		if err := ix.visit(e.slot, utf8.AppendRune(name, e.r), visitor); err != nil {
			return err
		}
	}
	return nil
}
