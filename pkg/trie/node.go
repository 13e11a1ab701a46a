package trie

import (
	"cmp"
	"slices"
)

const (
	rootSlot int32 = 0
	noParent int32 = -1
)

// edge links a node to one child. A node's edges are kept sorted by rune,
// which fixes traversal order and lets lookups binary search.
type edge struct {
	r    rune
	slot int32
}

// node is one arena slot. parent is a lookup index used only when pruning on
// removal; ownership flows strictly downward through children.
type node struct {
	value    rune
	parent   int32
	children []edge
	terminal bool
}

func compareEdge(e edge, r rune) int {
	return cmp.Compare(e.r, r)
}

func (n *node) search(r rune) (int, bool) {
	return slices.BinarySearchFunc(n.children, r, compareEdge)
}

func (n *node) child(r rune) (int32, bool) {
	i, ok := n.search(r)
	if !ok {
		return 0, false
	}
	return n.children[i].slot, true
}

func (n *node) isLeaf() bool {
	return len(n.children) == 0
}

// alloc hands out a slot, reusing freed ones first. It may grow the arena, so
// callers must not hold *node pointers across it.
func (ix *Index) alloc(value rune, parent int32) int32 {
	n := node{value: value, parent: parent}
	if k := len(ix.free); k > 0 {
		slot := ix.free[k-1]
		ix.free = ix.free[:k-1]
		ix.nodes[slot] = n
		return slot
	}
	ix.nodes = append(ix.nodes, n)
	return int32(len(ix.nodes) - 1)
}

// addChild creates the child of parent for r. The caller has checked it is absent.
func (ix *Index) addChild(parent int32, r rune) int32 {
	slot := ix.alloc(r, parent)
	p := &ix.nodes[parent]
	i, _ := p.search(r)
	p.children = slices.Insert(p.children, i, edge{r: r, slot: slot})
	return slot
}

func (ix *Index) detach(parent int32, r rune) {
	p := &ix.nodes[parent]
	if i, ok := p.search(r); ok {
		p.children = slices.Delete(p.children, i, i+1)
	}
}

func (ix *Index) release(slot int32) {
	ix.nodes[slot] = node{parent: noParent}
	ix.free = append(ix.free, slot)
}

// walk follows key from the root and returns the node it ends on.
func (ix *Index) walk(key string) (int32, bool) {
	cur := rootSlot
	for _, r := range key {
		next, ok := ix.nodes[cur].child(r)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

// prune frees slot, then each ancestor left childless, stopping at the root
// or at the first ancestor that is terminal or still has children.
func (ix *Index) prune(slot int32) {
	for slot != rootSlot {
		n := ix.nodes[slot]
		if n.terminal || !n.isLeaf() {
			return
		}
		ix.detach(n.parent, n.value)
		ix.release(slot)
		slot = n.parent
	}
}
