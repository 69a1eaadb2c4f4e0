package merkle

import "errors"

// Predefined error types for the Merkle engine. The engine is pure and
// stateless; these are the only failure modes it can produce (spec.md
// §4.3.4).
var (
	ErrEmptyAccountsList  = errors.New("empty accounts list")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrMerkleTreeRoot     = errors.New("error getting merkle tree root")
	ErrMerkleProofParsing = errors.New("error parsing proof")
)
