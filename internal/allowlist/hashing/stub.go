package hashing

import "crypto/sha256"

// StubHasher is a non-production Hasher for engine unit tests that want to
// exercise the tree-walking logic independent of Keccak256 itself.
type StubHasher struct{}

// Hash implements Hasher using SHA-256, deliberately distinct from Keccak256
// so a test can't accidentally pass by coincidence.
func (StubHasher) Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}
