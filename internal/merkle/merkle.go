// Package merkle implements the vanilla binary Merkle tree used for both
// journal_root (over a block's LedgerEntry list) and state_root (over the
// post-block account snapshot). A sparse Merkle or Jellyfish tree was
// considered but rejected: AtlasDB never deletes an account, so a SMT's
// delete/
// non-membership support buys nothing over a plain binary tree re-built
// each block from the sorted leaf set.
package merkle

import "github.com/BrunoAwdd/atlasDb/internal/codec"

var leafPrefix = []byte{0x00}
var nodePrefix = []byte{0x01}

// Root computes the Merkle root over leaves in the order given. An empty
// leaf set hashes to the zero hash; a single leaf is its own root.
func Root(leaves [][]byte) codec.Hash {
	if len(leaves) == 0 {
		return codec.Hash{}
	}
	level := make([]codec.Hash, len(leaves))
	for i, l := range leaves {
		level[i] = codec.SumAll(leafPrefix, l)
	}
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

func nextLevel(level []codec.Hash) []codec.Hash {
	out := make([]codec.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			out = append(out, codec.SumAll(nodePrefix, level[i][:], level[i+1][:]))
		} else {
			// odd node promoted by duplicating it, the standard Bitcoin-style
			// rule for odd-width levels.
			out = append(out, codec.SumAll(nodePrefix, level[i][:], level[i][:]))
		}
	}
	return out
}

// Proof is an inclusion proof: the sibling hash at each level from leaf to
// root, and whether that sibling sits on the left.
type Proof struct {
	Siblings []codec.Hash
	IsLeft   []bool
}

// Prove builds an inclusion proof for the leaf at index idx.
func Prove(leaves [][]byte, idx int) (Proof, error) {
	var p Proof
	if idx < 0 || idx >= len(leaves) {
		return p, errIndexRange
	}
	level := make([]codec.Hash, len(leaves))
	for i, l := range leaves {
		level[i] = codec.SumAll(leafPrefix, l)
	}
	for len(level) > 1 {
		pairIdx := idx ^ 1
		if pairIdx < len(level) {
			p.Siblings = append(p.Siblings, level[pairIdx])
			p.IsLeft = append(p.IsLeft, pairIdx < idx)
		} else {
			p.Siblings = append(p.Siblings, level[idx])
			p.IsLeft = append(p.IsLeft, false)
		}
		level = nextLevel(level)
		idx /= 2
	}
	return p, nil
}

// Verify checks that leaf, combined with proof, reproduces root.
func Verify(leaf []byte, p Proof, root codec.Hash) bool {
	h := codec.SumAll(leafPrefix, leaf)
	for i, sib := range p.Siblings {
		if p.IsLeft[i] {
			h = codec.SumAll(nodePrefix, sib[:], h[:])
		} else {
			h = codec.SumAll(nodePrefix, h[:], sib[:])
		}
	}
	return h == root
}

type mkErr string

func (e mkErr) Error() string { return string(e) }

const errIndexRange = mkErr("merkle: index out of range")
