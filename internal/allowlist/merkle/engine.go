// Package merkle builds the sorted, ordered Merkle tree over allowlist
// records and produces inclusion and absence proofs. This is the hard core
// of the service (spec.md §1): leaf encoding, hash, and tree shape are
// fixed, not configurable.
//
// The tree is NOT OpenZeppelin's sorted-pair variety: siblings are combined
// in level order, never reordered, because absence proofs rely on the
// sorted leaf sequence staying an ordered sequence all the way up (spec.md
// §4.3.1, §4.3.3, §9).
package merkle

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/andrey/allowlist-attestor/internal/allowlist/hashing"
	"github.com/andrey/allowlist-attestor/internal/allowlist/record"
)

// parallelLeafThreshold is the leaf count at or above which leaf hashing is
// spread across a bounded worker pool instead of run inline. Below it the
// goroutine/errgroup overhead isn't worth paying (spec.md §5: tree
// construction for very large leaf sets SHOULD off-load so it doesn't stall
// the request scheduler; small trees just compute synchronously).
const parallelLeafThreshold = 4096

// Proof is an authentication path: sibling digests ordered from the leaf
// level up to (not including) the root.
type Proof [][32]byte

// SideProof is one bracketing side of an absence proof.
type SideProof struct {
	Proof Proof
	Index int
	Leaf  [32]byte
}

// AbsenceProof brackets an absent record between its sorted neighbours.
// Either side may be nil at the ends of the sorted sequence; the two
// optionalities are meaningful and must not be collapsed (spec.md §9).
type AbsenceProof struct {
	Left  *SideProof
	Right *SideProof
}

// Engine builds trees and proofs. It is stateless and safe for concurrent
// use; the only state is the injected Hasher.
type Engine struct {
	hasher hashing.Hasher
}

// NewEngine returns an Engine bound to the production Keccak256 hasher.
func NewEngine() *Engine {
	return &Engine{hasher: hashing.Keccak256{}}
}

// NewEngineWithHasher returns an Engine bound to an arbitrary Hasher, for
// tests that want to exercise tree-walking independent of Keccak256.
func NewEngineWithHasher(h hashing.Hasher) *Engine {
	return &Engine{hasher: h}
}

func sortedCopy(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return record.Compare(out[i], out[j]) < 0
	})
	return out
}

func (e *Engine) leafHash(r record.Record) [32]byte {
	return e.hasher.Hash(r.Packed())
}

func (e *Engine) leaves(sorted []record.Record) [][32]byte {
	if len(sorted) < parallelLeafThreshold {
		leaves := make([][32]byte, len(sorted))
		for i, r := range sorted {
			leaves[i] = e.leafHash(r)
		}
		return leaves
	}
	return e.leavesParallel(sorted)
}

// leavesParallel hashes leaves on a bounded worker pool. Leaf hashing has no
// cross-record dependency, so chunks can run independently; each goroutine
// writes only to the slice positions it owns.
func (e *Engine) leavesParallel(sorted []record.Record) [][32]byte {
	leaves := make([][32]byte, len(sorted))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(sorted) {
		workers = len(sorted)
	}
	chunk := (len(sorted) + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < len(sorted); start += chunk {
		start := start
		end := start + chunk
		if end > len(sorted) {
			end = len(sorted)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				leaves[i] = e.leafHash(sorted[i])
			}
			return nil
		})
	}
	_ = g.Wait() // worker funcs never return an error
	return leaves
}

// levels returns every level of the tree, levels[0] being the leaves and
// levels[len-1] a single-element root level. Parent rule: pair adjacent
// siblings left-to-right; an odd trailing node is promoted unchanged
// (spec.md §4.3.1).
func (e *Engine) levels(leaves [][32]byte) [][][32]byte {
	levels := make([][][32]byte, 0, 1)
	levels = append(levels, leaves)
	current := leaves
	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				combined := make([]byte, 0, 64)
				combined = append(combined, current[i][:]...)
				combined = append(combined, current[i+1][:]...)
				next = append(next, e.hasher.Hash(combined))
			} else {
				next = append(next, current[i])
			}
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}

// Root computes the Merkle root over records, sorting them first. Empty
// input fails with ErrEmptyAccountsList; a single record's root equals its
// own leaf hash (depth 0).
func (e *Engine) Root(records []record.Record) ([32]byte, error) {
	if len(records) == 0 {
		return [32]byte{}, ErrEmptyAccountsList
	}
	sorted := sortedCopy(records)
	levels := e.levels(e.leaves(sorted))
	root := levels[len(levels)-1][0]
	return root, nil
}

// proofForIndex walks the tree from a leaf index up to the root, collecting
// sibling digests. A level contributes a sibling only when the node at that
// level was actually paired; an odd trailing node promoted unchanged
// contributes nothing.
func proofForIndex(levels [][][32]byte, leafIndex int) Proof {
	proof := make(Proof, 0, len(levels)-1)
	idx := leafIndex
	for level := 0; level < len(levels)-1; level++ {
		cur := levels[level]
		if idx%2 == 0 {
			if idx+1 < len(cur) {
				proof = append(proof, cur[idx+1])
			}
		} else {
			proof = append(proof, cur[idx-1])
		}
		idx /= 2
	}
	return proof
}

// InclusionProof locates target in the sorted sequence and returns its
// authentication path along with its index and the total leaf count.
//
// spec.md §4.3.2 mandates locating the target in the SORTED sequence, not
// the caller's input order — the source this service is modeled on performs
// the lookup on the unsorted input while building the tree from the sorted
// one, a latent path/leaf mismatch bug whenever the caller's input isn't
// already sorted. This implementation does not reproduce that bug.
func (e *Engine) InclusionProof(records []record.Record, target record.Record) (proof Proof, leafIndex int, leafCount int, err error) {
	if len(records) == 0 {
		return nil, 0, 0, ErrEmptyAccountsList
	}
	sorted := sortedCopy(records)

	idx := -1
	for i, r := range sorted {
		if record.Equal(r, target) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, 0, 0, ErrAccountNotFound
	}

	levels := e.levels(e.leaves(sorted))
	return proofForIndex(levels, idx), idx, len(sorted), nil
}

// findBracket returns the adjacent sorted-index pair bracketing target, or
// the single open-ended index at either end of the sequence (spec.md
// §4.3.3).
func findBracket(sorted []record.Record, target record.Record) (left, right *int) {
	// smallest index with sorted[i] > target
	rightIdx := sort.Search(len(sorted), func(i int) bool {
		return record.Compare(sorted[i], target) > 0
	})

	switch {
	case rightIdx == 0:
		r := 0
		return nil, &r
	case rightIdx == len(sorted):
		l := len(sorted) - 1
		return &l, nil
	default:
		l, r := rightIdx-1, rightIdx
		return &l, &r
	}
}

// AbsenceProof brackets target between its two sorted neighbours and
// returns an inclusion proof for each bracketing side that exists. It fails
// with ErrAccountAlreadyExists if target is already a member.
func (e *Engine) AbsenceProof(records []record.Record, target record.Record) (AbsenceProof, error) {
	if len(records) == 0 {
		return AbsenceProof{}, ErrEmptyAccountsList
	}
	sorted := sortedCopy(records)

	for _, r := range sorted {
		if record.Equal(r, target) {
			return AbsenceProof{}, ErrAccountAlreadyExists
		}
	}

	leftIdx, rightIdx := findBracket(sorted, target)

	levels := e.levels(e.leaves(sorted))
	var result AbsenceProof
	if leftIdx != nil {
		result.Left = &SideProof{
			Proof: proofForIndex(levels, *leftIdx),
			Index: *leftIdx,
			Leaf:  levels[0][*leftIdx],
		}
	}
	if rightIdx != nil {
		result.Right = &SideProof{
			Proof: proofForIndex(levels, *rightIdx),
			Index: *rightIdx,
			Leaf:  levels[0][*rightIdx],
		}
	}
	return result, nil
}

// Verify checks an authentication path against a claimed root, mirroring
// the verifier an on-chain contract or a remote client would run: it has no
// access to the full account list, only (leaf, index, leafCount, proof).
func Verify(root [32]byte, leaf [32]byte, index int, leafCount int, proof Proof, h hashing.Hasher) bool {
	if index < 0 || index >= leafCount {
		return false
	}
	current := leaf
	idx := index
	levelSize := leafCount
	pi := 0

	for levelSize > 1 {
		if idx%2 == 0 {
			if idx+1 < levelSize {
				if pi >= len(proof) {
					return false
				}
				combined := make([]byte, 0, 64)
				combined = append(combined, current[:]...)
				combined = append(combined, proof[pi][:]...)
				current = h.Hash(combined)
				pi++
			}
		} else {
			if pi >= len(proof) {
				return false
			}
			combined := make([]byte, 0, 64)
			combined = append(combined, proof[pi][:]...)
			combined = append(combined, current[:]...)
			current = h.Hash(combined)
			pi++
		}
		idx /= 2
		levelSize = (levelSize + 1) / 2
	}

	if pi != len(proof) {
		return false
	}
	return current == root
}
