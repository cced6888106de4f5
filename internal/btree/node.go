// Package btree implements an in-memory B+ tree mapping typed Values to
// RecordIds, with duplicate keys, leaf chaining, and splits on overflow.
package btree

import "github.com/novadb/novadb/internal/value"

// node is a single B+ tree node. Leaf and internal nodes share this struct
// rather than a class hierarchy: isLeaf picks which fields are meaningful.
// Leaves carry recordIDs and sibling links; internal nodes carry children
// with len(children) == len(keys)+1.
type node struct {
	isLeaf bool
	isRoot bool
	keys   []value.Value
	parent *node

	// leaf-only
	recordIDs []uint32
	next      *node
	prev      *node

	// internal-only
	children []*node
}

func newLeaf() *node  { return &node{isLeaf: true} }
func newInternal() *node { return &node{isLeaf: false} }

func (n *node) keyCount() int { return len(n.keys) }

func (n *node) isFull(maxKeys int) bool { return n.keyCount() >= maxKeys }

func (n *node) isUnderflow(minKeys int) bool { return n.keyCount() < minKeys }

// cmp reports the typed-comparison order of a against b, treating an
// incomparable pair (e.g. Text vs numeric) as "greater" so it never matches
// during descent; callers that care check ok separately via value.Compare.
func cmp(a, b value.Value) int {
	c, ok := value.Compare(a, b)
	if !ok {
		return 1
	}
	return c
}

// findChildIndex returns the index of the child to descend into for key:
// the first index i such that key < keys[i], or len(children)-1 if key is
// greater than or equal to every key.
func (n *node) findChildIndex(key value.Value) int {
	i := 0
	for i < n.keyCount() && cmp(key, n.keys[i]) >= 0 {
		i++
	}
	return i
}

// insertPos returns the first index whose key is > key, i.e. the
// insertion-sort position that keeps keys non-decreasing (stable for
// duplicates: new equal keys land after existing ones).
func (n *node) insertPos(key value.Value) int {
	i := 0
	for i < n.keyCount() && cmp(n.keys[i], key) <= 0 {
		i++
	}
	return i
}
