package merkle

import "crypto/sha256"

// Leaf is a single entry in the tree: a named, hashed, sized item.
// At the shard level a leaf is a record (name=_id); at the collection
// level a leaf is a shard (name=shardId, length=shard leaf count); at
// the database level a leaf is a collection (name=collection name).
type Leaf struct {
	Name         string
	Hash         [32]byte
	Length       uint64
	LastModified int64 // milliseconds since Unix epoch
}

// Node is a node in the overlaid sort/Merkle tree. Leaf nodes carry
// Name/Hash/Length/LastModified directly; internal nodes derive MinName
// from their children and Hash from hashing the children's hashes
// together (or, with only a left child, carrying it unchanged).
type Node struct {
	Left, Right *Node
	IsLeaf      bool

	Name         string // leaf name; for internal nodes this field is unused (see MinName)
	Hash         [32]byte
	Length       uint64
	LastModified int64

	MinName   string
	NodeCount uint64
	LeafCount uint64
}

// ZeroHash is the well-defined root hash of an empty tree.
var ZeroHash = sha256.Sum256(nil)

func newLeafNode(l Leaf) *Node {
	return &Node{
		IsLeaf:       true,
		Name:         l.Name,
		Hash:         l.Hash,
		Length:       l.Length,
		LastModified: l.LastModified,
		MinName:      l.Name,
		NodeCount:    1,
		LeafCount:    1,
	}
}

func newInternalNode(left, right *Node) *Node {
	n := &Node{Left: left, Right: right, MinName: left.MinName}
	n.NodeCount = 1 + left.NodeCount
	n.LeafCount = left.LeafCount
	if right != nil {
		n.NodeCount += right.NodeCount
		n.LeafCount += right.LeafCount
		if right.MinName < n.MinName {
			n.MinName = right.MinName
		}
		n.Hash = sha256.Sum256(append(append([]byte{}, left.Hash[:]...), right.Hash[:]...))
	} else {
		// A node with only a left child carries that child's hash unchanged.
		n.Hash = left.Hash
	}
	return n
}

// BuildMerkleTree is a pure function: given a slice of leaves already in
// sort order, it deterministically builds the bottom-up pairwise hash
// tree. Identical leaf sets in identical sort positions always produce
// an identical root.
func BuildMerkleTree(leaves []Leaf) *Node {
	if len(leaves) == 0 {
		return nil
	}
	level := make([]*Node, len(leaves))
	for i, l := range leaves {
		level[i] = newLeafNode(l)
	}
	for len(level) > 1 {
		level = buildLevel(level)
	}
	return level[0]
}

func buildLevel(nodes []*Node) []*Node {
	parents := make([]*Node, 0, (len(nodes)+1)/2)
	for i := 0; i < len(nodes); i += 2 {
		if i+1 < len(nodes) {
			parents = append(parents, newInternalNode(nodes[i], nodes[i+1]))
		} else {
			parents = append(parents, newInternalNode(nodes[i], nil))
		}
	}
	return parents
}

// RootHash returns a node's hash, or the well-defined zero hash when the
// tree is empty (root == nil).
func RootHash(root *Node) [32]byte {
	if root == nil {
		return ZeroHash
	}
	return root.Hash
}

// CheckInvariants validates nodeCount/minName bookkeeping recursively.
// It is used by tests and by Deserialize, which rejects a decoded tree
// whose bookkeeping does not hold.
func CheckInvariants(n *Node) bool {
	if n == nil {
		return true
	}
	if n.IsLeaf {
		return n.NodeCount == 1 && n.LeafCount == 1 && n.MinName == n.Name
	}
	if n.Left == nil {
		return false
	}
	wantCount := uint64(1) + n.Left.NodeCount
	wantLeaves := n.Left.LeafCount
	wantMin := n.Left.MinName
	if n.Right != nil {
		wantCount += n.Right.NodeCount
		wantLeaves += n.Right.LeafCount
		if n.Right.MinName < wantMin {
			wantMin = n.Right.MinName
		}
	}
	if n.NodeCount != wantCount || n.LeafCount != wantLeaves || n.MinName != wantMin {
		return false
	}
	return CheckInvariants(n.Left) && CheckInvariants(n.Right)
}
