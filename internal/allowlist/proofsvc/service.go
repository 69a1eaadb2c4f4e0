// Package proofsvc composes the proposal store (C4) and the Merkle engine
// (C3) into the stateless inclusion/absence proof facade spec.md §4.5
// describes. It owns no state of its own; every call loads the committed
// account set fresh from the store.
package proofsvc

import (
	"context"
	"fmt"

	"github.com/andrey/allowlist-attestor/internal/allowlist/merkle"
	"github.com/andrey/allowlist-attestor/internal/allowlist/record"
	"github.com/andrey/allowlist-attestor/internal/allowlist/store"
)

// AccountLoader is the slice of store.Store this service depends on — the
// read path only, so proof generation can be tested against a fake without
// pulling in a database.
type AccountLoader interface {
	AccountsOf(ctx context.Context, proposalID int64) ([]store.Account, error)
}

// Service is the C5 ProofService: stateless, safe for concurrent use.
type Service struct {
	accounts AccountLoader
	engine   *merkle.Engine
}

// New returns a Service bound to accounts and the production Keccak256
// engine.
func New(accounts AccountLoader) *Service {
	return &Service{accounts: accounts, engine: merkle.NewEngine()}
}

// Inclusion loads the accounts committed to proposalID and returns the raw
// inclusion-proof bytes for candidate: sibling digests concatenated in
// order, no framing (spec.md §4.3.2 "Wire format").
func (s *Service) Inclusion(ctx context.Context, proposalID int64, candidate record.Record) ([]byte, error) {
	records, err := s.loadRecords(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	proof, _, _, err := s.engine.InclusionProof(records, candidate)
	if err != nil {
		return nil, err
	}
	return proofBytes(proof), nil
}

// Absence loads the accounts committed to proposalID and returns the raw
// bracket proof bytes for candidate. Either side may be nil when candidate
// sits at an end of the sorted sequence (spec.md §4.3.3, §9 "two-sided
// optional").
func (s *Service) Absence(ctx context.Context, proposalID int64, candidate record.Record) (left, right []byte, err error) {
	records, err := s.loadRecords(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}

	ap, err := s.engine.AbsenceProof(records, candidate)
	if err != nil {
		return nil, nil, err
	}

	if ap.Left != nil {
		left = proofBytes(ap.Left.Proof)
	}
	if ap.Right != nil {
		right = proofBytes(ap.Right.Proof)
	}
	return left, right, nil
}

func (s *Service) loadRecords(ctx context.Context, proposalID int64) ([]record.Record, error) {
	accounts, err := s.accounts.AccountsOf(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("loading accounts for proposal %d: %w", proposalID, err)
	}

	records := make([]record.Record, len(accounts))
	for i, a := range accounts {
		records[i] = record.Record{Address: a.Address, Balance: a.Balance}
	}
	return records, nil
}

func proofBytes(proof merkle.Proof) []byte {
	out := make([]byte, 0, len(proof)*32)
	for _, sibling := range proof {
		out = append(out, sibling[:]...)
	}
	return out
}
