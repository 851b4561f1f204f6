package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMerkleTreeIsPureAndDeterministic(t *testing.T) {
	leaves := []Leaf{leafFor("a"), leafFor("b"), leafFor("c")}
	r1 := BuildMerkleTree(leaves)
	r2 := BuildMerkleTree(leaves)
	assert.Equal(t, r1.Hash, r2.Hash)
	assert.True(t, CheckInvariants(r1))
}

func TestBuildMerkleTreeEmptyIsNil(t *testing.T) {
	assert.Nil(t, BuildMerkleTree(nil))
	assert.Equal(t, ZeroHash, RootHash(BuildMerkleTree(nil)))
}

func TestBuildMerkleTreeSingleLeafHashIsLeafHash(t *testing.T) {
	l := leafFor("solo")
	root := BuildMerkleTree([]Leaf{l})
	assert.Equal(t, l.Hash, root.Hash)
	assert.True(t, root.IsLeaf)
}

func TestOddLeafCountCarriesUnpairedHashUp(t *testing.T) {
	leaves := []Leaf{leafFor("a"), leafFor("b"), leafFor("c")}
	root := BuildMerkleTree(leaves)
	assert.Equal(t, uint64(3), root.LeafCount)
	assert.Equal(t, "a", root.MinName)
}
