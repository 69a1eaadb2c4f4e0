package store

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Proposal is a named, persisted record set with its committed root.
type Proposal struct {
	ID          int64
	Author      common.Address
	BlockNumber int64
	IPFSHash    string
	RootHash    [32]byte
	CreatedAt   time.Time
}

// Account is one committed (address, balance) row belonging to a Proposal.
type Account struct {
	ProposalID int64
	Address    common.Address
	Balance    *big.Int
	CreatedAt  time.Time
}

// ProposalWithAccounts bundles a Proposal with the accounts committed to it,
// the shape returned by GetWithAccounts and by the proposal-creation path.
type ProposalWithAccounts struct {
	Proposal Proposal
	Accounts []Account
}

// NewProposalDraft is the boundary-validated input to Create: author,
// metadata, and the account set the root is computed over.
type NewProposalDraft struct {
	Author      common.Address
	BlockNumber int64
	IPFSHash    string
}

// NewAccountDraft is one account row to be inserted as part of Create.
type NewAccountDraft struct {
	Address common.Address
	Balance *big.Int
}
