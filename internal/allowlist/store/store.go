// Package store persists proposals and the accounts committed to them. It
// is the only writer of allowlist state (spec.md §4.4, §5): proposal
// creation computes the Merkle root and inserts the proposal plus every
// account row in a single transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-pkgz/lgr"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/andrey/allowlist-attestor/internal/allowlist/merkle"
	"github.com/andrey/allowlist-attestor/internal/allowlist/record"
)

const (
	pgErrCodeCheckViolation  = "23514"
	pgErrCodeUniqueViolation = "23505"

	minPerPage = 1
	maxPerPage = 100
)

// Store is the Postgres-backed ProposalStore. It is safe for concurrent use;
// *sql.DB owns its own connection pool.
type Store struct {
	db     *sql.DB
	engine *merkle.Engine
	logger lgr.L
}

// New returns a Store bound to an already-open *sql.DB (see Open for the
// usual construction path) and the production Merkle engine.
func New(db *sql.DB, logger lgr.L) *Store {
	return &Store{db: db, engine: merkle.NewEngine(), logger: logger}
}

// Open opens a connection pool against dsn using the pgx stdlib driver and
// applies the pool-sizing config, grounded on the teacher's
// badger.DB-construction idiom in cmd/server/main.go generalized to a SQL
// connection pool.
func Open(dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// List returns proposals ordered by created_at ascending, paginated.
// per_page outside [1,100] is rejected with ErrInvalidPaginationRange.
func (s *Store) List(ctx context.Context, page, perPage int) ([]Proposal, error) {
	if perPage < minPerPage || perPage > maxPerPage {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPaginationRange, perPage)
	}
	if page < 0 {
		page = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, block_number, ipfs_hash, root_hash, created_at
		FROM proposals
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2`, perPage, page*perPage)
	if err != nil {
		return nil, fmt.Errorf("%w: listing proposals: %v", ErrStorage, err)
	}
	defer rows.Close()

	var proposals []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning proposal row: %v", ErrStorage, err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating proposals: %v", ErrStorage, err)
	}
	return proposals, nil
}

// GetWithAccounts loads a single proposal and the accounts committed to it.
func (s *Store) GetWithAccounts(ctx context.Context, id int64) (ProposalWithAccounts, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, author, block_number, ipfs_hash, root_hash, created_at
		FROM proposals WHERE id = $1`, id)

	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProposalWithAccounts{}, fmt.Errorf("%w: proposal %d", ErrNotFound, id)
		}
		return ProposalWithAccounts{}, fmt.Errorf("%w: loading proposal %d: %v", ErrStorage, id, err)
	}

	accounts, err := s.AccountsOf(ctx, id)
	if err != nil {
		return ProposalWithAccounts{}, err
	}
	return ProposalWithAccounts{Proposal: p, Accounts: accounts}, nil
}

// AccountsOf returns every account row committed to proposalID, ordered by
// address. Used directly by C5 (ProofService) and by CSV export.
func (s *Store) AccountsOf(ctx context.Context, proposalID int64) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proposal_id, address, balance, created_at
		FROM accounts WHERE proposal_id = $1
		ORDER BY address ASC`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing accounts for proposal %d: %v", ErrStorage, proposalID, err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning account row: %v", ErrStorage, err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating accounts: %v", ErrStorage, err)
	}
	return accounts, nil
}

// Create computes the Merkle root over accountDrafts and atomically inserts
// the proposal and its accounts (spec.md §4.4 step-by-step):
//  1. compute root_hash (before any database access)
//  2. begin transaction
//  3. insert proposal
//  4. bulk-insert accounts
//  5. commit
//
// Constraint violations are mapped to ErrInvalidAuthorAddress /
// ErrDuplicateAccount; a root-computation failure surfaces the merkle
// package's own sentinel directly (errors.Is-traversable, so the HTTP
// boundary can classify an empty accounts list as 400, not 500); anything
// else becomes ErrStorage wrapping the cause.
func (s *Store) Create(ctx context.Context, draft NewProposalDraft, accountDrafts []NewAccountDraft) (int64, error) {
	records := make([]record.Record, len(accountDrafts))
	for i, a := range accountDrafts {
		records[i] = record.Record{Address: a.Address, Balance: a.Balance}
	}
	root, err := s.engine.Root(records)
	if err != nil {
		return 0, fmt.Errorf("computing root: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %v", ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO proposals (author, block_number, ipfs_hash, root_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		strings.ToLower(draft.Author.Hex()), draft.BlockNumber, draft.IPFSHash, fmt.Sprintf("%x", root),
	).Scan(&id)
	if err != nil {
		return 0, translateWriteError(err)
	}

	if err := s.bulkInsertAccounts(ctx, tx, id, accountDrafts); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing transaction: %v", ErrStorage, err)
	}

	s.logger.Logf("INFO created proposal %d with %d accounts, root %x", id, len(accountDrafts), root)
	return id, nil
}

// bulkInsertAccounts inserts every account row for proposalID as a single
// multi-row VALUES statement, grounded on the teacher's batching comments
// in internal/services/epoch/epochimpl/store.go.
func (s *Store) bulkInsertAccounts(ctx context.Context, tx *sql.Tx, proposalID int64, drafts []NewAccountDraft) error {
	if len(drafts) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO accounts (proposal_id, address, balance) VALUES ")
	args := make([]any, 0, len(drafts)*3)
	for i, d := range drafts {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&b, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, proposalID, strings.ToLower(d.Address.Hex()), d.Balance.String())
	}

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return translateWriteError(err)
	}
	return nil
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrCodeCheckViolation:
			return fmt.Errorf("%w: %s", ErrInvalidAuthorAddress, pgErr.Message)
		case pgErrCodeUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (Proposal, error) {
	var (
		p         Proposal
		authorHex string
		rootHex   string
	)
	if err := row.Scan(&p.ID, &authorHex, &p.BlockNumber, &p.IPFSHash, &rootHex, &p.CreatedAt); err != nil {
		return Proposal{}, err
	}
	p.Author = common.HexToAddress(authorHex)
	rootBytes := common.FromHex("0x" + rootHex)
	copy(p.RootHash[:], rootBytes)
	return p, nil
}

func scanAccount(row scanner) (Account, error) {
	var (
		a          Account
		addressHex string
		balanceDec string
	)
	if err := row.Scan(&a.ProposalID, &addressHex, &balanceDec, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	a.Address = common.HexToAddress(addressHex)
	balance, ok := new(big.Int).SetString(balanceDec, 10)
	if !ok {
		return Account{}, fmt.Errorf("invalid stored balance %q", balanceDec)
	}
	a.Balance = balance
	return a, nil
}
