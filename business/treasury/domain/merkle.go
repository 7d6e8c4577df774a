package domain

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/venuelabs/crossarb/internal/apperror"
)

// Domain separation prefixes. Hashing leaves and interior nodes under
// different prefixes rules out second-preimage attacks that present an
// interior node as a leaf.
var (
	leafPrefix = []byte{0x00}
	nodePrefix = []byte{0x01}
)

// ProofTree is a Keccak-256 Merkle tree over a fixed leaf set. Sibling
// pairs are hashed in byte order, so audit paths carry no position
// bits. An unpaired node at the end of a layer is carried up unchanged.
type ProofTree struct {
	layers [][]common.Hash
}

// NewProofTree builds a tree over the given leaves. The leaf order is
// the caller's canonical order and is part of what the root commits to.
func NewProofTree(leaves [][]byte) (*ProofTree, error) {
	if len(leaves) == 0 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("merkle tree requires at least one leaf"))
	}

	layer := make([]common.Hash, len(leaves))
	for i, leaf := range leaves {
		layer[i] = hashLeaf(leaf)
	}

	t := &ProofTree{layers: [][]common.Hash{layer}}
	for len(layer) > 1 {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, hashPair(layer[i], layer[i+1]))
		}
		t.layers = append(t.layers, next)
		layer = next
	}
	return t, nil
}

// Root returns the tree root.
func (t *ProofTree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Proof returns the audit path for the leaf at index: the sibling hash
// at every layer from the bottom up. Carried-up nodes contribute no
// path element.
func (t *ProofTree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(t.layers[0]) {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("merkle leaf index out of range"))
	}

	var path []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		if sibling < len(layer) {
			path = append(path, layer[sibling])
		}
		index /= 2
	}
	return path, nil
}

// VerifyProof reports whether leaf is committed under root by the given
// audit path.
func VerifyProof(root common.Hash, leaf []byte, path []common.Hash) bool {
	h := hashLeaf(leaf)
	for _, sibling := range path {
		h = hashPair(h, sibling)
	}
	return h == root
}

func hashLeaf(data []byte) common.Hash {
	return crypto.Keccak256Hash(leafPrefix, data)
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(nodePrefix, a[:], b[:])
}
