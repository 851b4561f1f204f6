package merkle

import "sort"

// Tree is the mutable, in-memory representation: a sorted leaf set (the
// sort tree) plus a lazily-derived Merkle hash tree. It also retains
// insertion order separately so callers can iterate leaves in the order
// they were added, independent of sort order (spec section 4.2's
// "addition-order preservation layer").
type Tree struct {
	leaves []Leaf // kept sorted by Name
	order  []string
	root   *Node
	dirty  bool
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{dirty: false}
}

// Len returns the number of leaves currently in the tree.
func (t *Tree) Len() int { return len(t.leaves) }

// IsDirty reports whether the Merkle hash tree needs rebuilding.
func (t *Tree) IsDirty() bool { return t.dirty }

func (t *Tree) search(name string) (int, bool) {
	i := sort.Search(len(t.leaves), func(i int) bool { return t.leaves[i].Name >= name })
	if i < len(t.leaves) && t.leaves[i].Name == name {
		return i, true
	}
	return i, false
}

// AddItem inserts a leaf in sort order, replacing any existing leaf with
// the same name. Marks the tree dirty.
func (t *Tree) AddItem(leaf Leaf) {
	i, found := t.search(leaf.Name)
	if found {
		t.leaves[i] = leaf
		t.dirty = true
		return
	}
	t.leaves = append(t.leaves, Leaf{})
	copy(t.leaves[i+1:], t.leaves[i:])
	t.leaves[i] = leaf
	t.order = append(t.order, leaf.Name)
	t.dirty = true
}

// UpdateItem replaces the leaf matching leaf.Name in place. Reports
// whether a matching leaf was found.
func (t *Tree) UpdateItem(leaf Leaf) bool {
	i, found := t.search(leaf.Name)
	if !found {
		return false
	}
	t.leaves[i] = leaf
	t.dirty = true
	return true
}

// DeleteItem removes the leaf with the given name. Reports whether it
// was present.
func (t *Tree) DeleteItem(name string) bool {
	i, found := t.search(name)
	if !found {
		return false
	}
	t.leaves = append(t.leaves[:i], t.leaves[i+1:]...)
	for j, n := range t.order {
		if n == name {
			t.order = append(t.order[:j], t.order[j+1:]...)
			break
		}
	}
	t.dirty = true
	return true
}

// FindItemNode looks up a leaf by name in O(log n).
func (t *Tree) FindItemNode(name string) (Leaf, bool) {
	i, found := t.search(name)
	if !found {
		return Leaf{}, false
	}
	return t.leaves[i], true
}

// Leaves returns the current leaf set in sort order. The returned slice
// must not be mutated by the caller.
func (t *Tree) Leaves() []Leaf { return t.leaves }

// AdditionOrder returns leaf names in the order they were first added,
// skipping any later deleted.
func (t *Tree) AdditionOrder() []string { return t.order }

// Root rebuilds the Merkle hash tree if dirty and returns its root node
// (nil for an empty tree).
func (t *Tree) Root() *Node {
	if t.dirty || t.root == nil {
		t.root = BuildMerkleTree(t.leaves)
		t.dirty = false
	}
	return t.root
}

// RootHash returns the current Merkle root hash, rebuilding if needed.
func (t *Tree) RootHash() [32]byte {
	return RootHash(t.Root())
}

// LoadLeaves replaces the tree's contents with the given leaves, which
// must already be sorted by Name, and marks the tree dirty so the hash
// tree is rebuilt on next read. Used when restoring a tree from its
// flat on-disk encoding or rebuilding one from shard data.
func LoadLeaves(leaves []Leaf) *Tree {
	t := &Tree{leaves: leaves, dirty: true}
	t.order = make([]string, len(leaves))
	for i, l := range leaves {
		t.order[i] = l.Name
	}
	return t
}
