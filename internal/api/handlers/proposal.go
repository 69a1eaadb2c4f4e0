package handlers

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-pkgz/lgr"

	"github.com/andrey/allowlist-attestor/internal/allowlist/record"
	"github.com/andrey/allowlist-attestor/internal/allowlist/store"
)

const (
	defaultPage    = 0
	defaultPerPage = 20
)

// ProposalStore is the subset of store.Store the HTTP boundary depends on.
type ProposalStore interface {
	List(ctx context.Context, page, perPage int) ([]store.Proposal, error)
	Create(ctx context.Context, draft store.NewProposalDraft, accounts []store.NewAccountDraft) (int64, error)
	GetWithAccounts(ctx context.Context, id int64) (store.ProposalWithAccounts, error)
}

// ProofGenerator is the subset of proofsvc.Service the HTTP boundary
// depends on.
type ProofGenerator interface {
	Inclusion(ctx context.Context, proposalID int64, candidate record.Record) ([]byte, error)
	Absence(ctx context.Context, proposalID int64, candidate record.Record) (left, right []byte, err error)
}

// ProposalHandler serves the /proposal surface of spec.md §6.1.
type ProposalHandler struct {
	store  ProposalStore
	proofs ProofGenerator
	logger lgr.L
}

// NewProposalHandler builds a ProposalHandler.
func NewProposalHandler(store ProposalStore, proofs ProofGenerator, logger lgr.L) *ProposalHandler {
	return &ProposalHandler{store: store, proofs: proofs, logger: logger}
}

type accountDTO struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type proposalDTO struct {
	ID          int64        `json:"id"`
	Author      string       `json:"author"`
	BlockNumber int64        `json:"block_number"`
	IPFSHash    string       `json:"ipfs_hash"`
	RootHash    string       `json:"root_hash"`
	Accounts    []accountDTO `json:"accounts,omitempty"`
}

func toAccountDTO(a store.Account) accountDTO {
	return accountDTO{Address: strings.ToLower(a.Address.Hex()), Balance: a.Balance.String()}
}

func toProposalDTO(p store.Proposal) proposalDTO {
	return proposalDTO{
		ID:          p.ID,
		Author:      strings.ToLower(p.Author.Hex()),
		BlockNumber: p.BlockNumber,
		IPFSHash:    p.IPFSHash,
		RootHash:    hex.EncodeToString(p.RootHash[:]),
	}
}

// HandleList returns the paginated proposal index.
// @Summary List proposals
// @Tags proposal
// @Produce json
// @Param page query int false "zero-based page index"
// @Param per_page query int false "page size, 1-100"
// @Success 200 {array} proposalDTO
// @Failure 400 {object} ErrorResponse
// @Router /proposal [get]
func (h *ProposalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", defaultPage)
	perPage := queryInt(r, "per_page", defaultPerPage)

	proposals, err := h.store.List(r.Context(), page, perPage)
	if err != nil {
		writeErrorResponse(w, err, "failed to list proposals")
		return
	}

	dtos := make([]proposalDTO, len(proposals))
	for i, p := range proposals {
		dtos[i] = toProposalDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

type newAccountRequest struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type newProposalRequest struct {
	Author      string              `json:"author"`
	BlockNumber int64               `json:"block_number"`
	IPFSHash    string              `json:"ipfs_hash"`
	Accounts    []newAccountRequest `json:"accounts"`
}

// HandleCreate computes the root over the submitted accounts and commits
// the proposal atomically.
// @Summary Create a proposal
// @Tags proposal
// @Accept json
// @Produce json
// @Param proposal body newProposalRequest true "proposal draft"
// @Success 201 {object} proposalDTO
// @Failure 400 {object} ErrorResponse
// @Router /proposal [post]
func (h *ProposalHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req newProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, record.ErrBadAddress, "malformed request body")
		return
	}

	author, err := record.Parse(req.Author, "0")
	if err != nil {
		writeErrorResponse(w, err, "invalid author address")
		return
	}

	drafts := make([]store.NewAccountDraft, len(req.Accounts))
	for i, a := range req.Accounts {
		rec, err := record.Parse(a.Address, a.Balance)
		if err != nil {
			writeErrorResponse(w, err, "invalid account entry")
			return
		}
		drafts[i] = store.NewAccountDraft{Address: rec.Address, Balance: rec.Balance}
	}

	id, err := h.store.Create(r.Context(), store.NewProposalDraft{
		Author:      author.Address,
		BlockNumber: req.BlockNumber,
		IPFSHash:    req.IPFSHash,
	}, drafts)
	if err != nil {
		h.logger.Logf("ERROR failed to create proposal: %v", err)
		writeErrorResponse(w, err, "failed to create proposal")
		return
	}

	created, err := h.store.GetWithAccounts(r.Context(), id)
	if err != nil {
		writeErrorResponse(w, err, "failed to load created proposal")
		return
	}
	dto := toProposalDTO(created.Proposal)
	dto.Accounts = make([]accountDTO, len(created.Accounts))
	for i, a := range created.Accounts {
		dto.Accounts[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusCreated, dto)
}

// HandleGet returns a single proposal with its accounts.
// @Summary Get a proposal
// @Tags proposal
// @Produce json
// @Param id path int true "proposal id"
// @Success 200 {object} proposalDTO
// @Failure 400 {object} ErrorResponse
// @Router /proposal/{id} [get]
func (h *ProposalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeErrorResponse(w, store.ErrNotFound, "invalid proposal id")
		return
	}

	got, err := h.store.GetWithAccounts(r.Context(), id)
	if err != nil {
		writeErrorResponse(w, err, "proposal not found")
		return
	}

	dto := toProposalDTO(got.Proposal)
	dto.Accounts = make([]accountDTO, len(got.Accounts))
	for i, a := range got.Accounts {
		dto.Accounts[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dto)
}

type candidateRequest struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// HandleInclusionProof returns the inclusion proof for the candidate record.
// @Summary Inclusion proof for a candidate account
// @Tags proposal
// @Accept json
// @Produce json
// @Param id path int true "proposal id"
// @Param candidate body candidateRequest true "account to prove"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /proposal/{id}/inclusion_proof [post]
func (h *ProposalHandler) HandleInclusionProof(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeErrorResponse(w, store.ErrNotFound, "invalid proposal id")
		return
	}

	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, record.ErrBadAddress, "malformed request body")
		return
	}

	candidate, err := record.Parse(req.Address, req.Balance)
	if err != nil {
		writeErrorResponse(w, err, "invalid candidate account")
		return
	}

	proof, err := h.proofs.Inclusion(r.Context(), id, candidate)
	if err != nil {
		writeErrorResponse(w, err, "failed to generate inclusion proof")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"proof": hex.EncodeToString(proof)})
}

// HandleAbsenceProof returns the bracketing absence proof for the candidate
// record. The wire path preserves the "absense" spelling (spec.md §6.1).
// @Summary Absence proof for a candidate account
// @Tags proposal
// @Accept json
// @Produce json
// @Param id path int true "proposal id"
// @Param candidate body candidateRequest true "account to prove absent"
// @Success 200 {object} map[string][]string
// @Failure 400 {object} ErrorResponse
// @Router /proposal/{id}/absense_proof [post]
func (h *ProposalHandler) HandleAbsenceProof(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeErrorResponse(w, store.ErrNotFound, "invalid proposal id")
		return
	}

	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, record.ErrBadAddress, "malformed request body")
		return
	}

	candidate, err := record.Parse(req.Address, req.Balance)
	if err != nil {
		writeErrorResponse(w, err, "invalid candidate account")
		return
	}

	left, right, err := h.proofs.Absence(r.Context(), id, candidate)
	if err != nil {
		writeErrorResponse(w, err, "failed to generate absence proof")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{
		"proof": {hex.EncodeToString(left), hex.EncodeToString(right)},
	})
}

// HandleCSV streams the committed (address, balance) pairs as text/csv.
// @Summary Export a proposal's accounts as CSV
// @Tags proposal
// @Produce text/csv
// @Param id path int true "proposal id"
// @Success 200 {string} string "address,balance per line"
// @Failure 400 {object} ErrorResponse
// @Router /proposal/{id}/csv [get]
func (h *ProposalHandler) HandleCSV(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeErrorResponse(w, store.ErrNotFound, "invalid proposal id")
		return
	}

	got, err := h.store.GetWithAccounts(r.Context(), id)
	if err != nil {
		writeErrorResponse(w, err, "proposal not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	for _, a := range got.Accounts {
		if err := cw.Write([]string{strings.ToLower(a.Address.Hex()), a.Balance.String()}); err != nil {
			h.logger.Logf("ERROR failed writing csv row: %v", err)
			return
		}
	}
	cw.Flush()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func pathInt64(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(r.PathValue(key), 10, 64)
}
