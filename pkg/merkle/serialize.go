package merkle

import (
	"encoding/binary"
	"fmt"
)

// Magic values identify which level of the hierarchy a serialized tree
// belongs to. Shard and collection trees share the COLT magic; database
// trees use BDBT. Both share the same node layout.
const (
	MagicCollection uint32 = 0x434f4c54 // "COLT"
	MagicDatabase   uint32 = 0x42444254 // "BDBT"
	formatVersion   uint32 = 1

	flagIsLeaf = 1 << 0
)

// Serialize encodes a tree as a flat pre-order array: header (magic,
// version) followed by one entry per node, parent before children. Each
// internal node's NodeCount lets Deserialize recover subtree boundaries
// without storing explicit child pointers.
func Serialize(magic uint32, root *Node) []byte {
	buf := make([]byte, 0, 64)
	buf = appendU32(buf, magic)
	buf = appendU32(buf, formatVersion)
	buf = appendNode(buf, root)
	return buf
}

func appendNode(buf []byte, n *Node) []byte {
	if n == nil {
		return buf
	}
	var flags byte
	if n.IsLeaf {
		flags = flagIsLeaf
	}
	buf = append(buf, flags)

	name := n.Name
	if !n.IsLeaf {
		name = n.MinName
	}
	buf = appendU32(buf, uint32(len(name)))
	buf = append(buf, name...)

	buf = append(buf, n.Hash[:]...)
	buf = appendU64(buf, n.Length)
	buf = appendU64(buf, uint64(n.LastModified))
	buf = appendU64(buf, n.NodeCount)
	buf = appendU64(buf, n.LeafCount)

	if !n.IsLeaf {
		buf = appendNode(buf, n.Left)
		buf = appendNode(buf, n.Right)
	}
	return buf
}

// Deserialize decodes a flat pre-order array produced by Serialize,
// checking the magic and version and validating bookkeeping invariants
// as it rebuilds the tree. Returns (nil, nil) for an empty tree (header
// only, no node entries).
func Deserialize(wantMagic uint32, data []byte) (*Node, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("merkle: truncated header (%d bytes)", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	if magic != wantMagic {
		return nil, fmt.Errorf("merkle: bad magic %#x, want %#x", magic, wantMagic)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("merkle: unsupported tree format version %d", version)
	}
	rest := data[8:]
	if len(rest) == 0 {
		return nil, nil
	}
	d := &decoder{buf: rest}
	root, err := d.readSubtree()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, fmt.Errorf("merkle: %d trailing bytes after tree", len(d.buf)-d.pos)
	}
	if !CheckInvariants(root) {
		return nil, fmt.Errorf("merkle: decoded tree fails invariant check")
	}
	return root, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) need(n int) error {
	if d.pos+n > len(d.buf) {
		return fmt.Errorf("merkle: truncated tree at offset %d, need %d more bytes", d.pos, n)
	}
	return nil
}

// readSubtree reads one node entry and, for internal nodes, recursively
// reads its children using NodeCount to bound the left subtree's entry
// count and the remainder for the right subtree.
func (d *decoder) readSubtree() (*Node, error) {
	if err := d.need(1); err != nil {
		return nil, err
	}
	flags := d.buf[d.pos]
	d.pos++
	isLeaf := flags&flagIsLeaf != 0

	if err := d.need(4); err != nil {
		return nil, err
	}
	nameLen := int(binary.LittleEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	if err := d.need(nameLen); err != nil {
		return nil, err
	}
	name := string(d.buf[d.pos : d.pos+nameLen])
	d.pos += nameLen

	if err := d.need(32 + 8 + 8 + 8 + 8); err != nil {
		return nil, err
	}
	var hash [32]byte
	copy(hash[:], d.buf[d.pos:d.pos+32])
	d.pos += 32
	length := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	lastModified := int64(binary.LittleEndian.Uint64(d.buf[d.pos:]))
	d.pos += 8
	nodeCount := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	leafCount := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8

	n := &Node{
		IsLeaf:       isLeaf,
		Hash:         hash,
		Length:       length,
		LastModified: lastModified,
		MinName:      name,
		NodeCount:    nodeCount,
		LeafCount:    leafCount,
	}
	if isLeaf {
		n.Name = name
		return n, nil
	}

	// The left subtree's own NodeCount tells us where it ends and the
	// right subtree (if any) begins.
	left, err := d.readSubtree()
	if err != nil {
		return nil, err
	}
	n.Left = left

	remaining := nodeCount - 1 - left.NodeCount
	if remaining > 0 {
		right, err := d.readSubtree()
		if err != nil {
			return nil, err
		}
		n.Right = right
	}
	return n, nil
}
