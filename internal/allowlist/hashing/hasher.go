// Package hashing provides the 32-byte digest function the Merkle engine is
// built over. Production code must use Keccak256 exclusively; the interface
// exists so tests can swap in a stub (spec.md §4.2).
package hashing

import "golang.org/x/crypto/sha3"

// Hasher produces a 32-byte digest for an arbitrary byte slice.
type Hasher interface {
	Hash(data []byte) [32]byte
}

// Keccak256 is the Ethereum/EVM Keccak permutation, NOT NIST SHA3-256. This
// is the only hasher the engine ships in production; it is what makes leaf
// and parent digests verifiable by an on-chain contract.
type Keccak256 struct{}

// Hash implements Hasher.
func (Keccak256) Hash(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	h.Sum(out[:0])
	return out
}
