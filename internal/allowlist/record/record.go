// Package record implements the canonical (address, balance) value that the
// allowlist Merkle tree commits to. The packed encoding is address bytes
// followed by the balance's minimal big-endian bytes (see Packed); callers
// that verify proofs against a previously published root depend on this
// byte-for-byte.
package record

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Record is an allowlist leaf value: an address and the balance committed
// for it. Balance is never negative and never exceeds 256 bits; both are
// enforced at Parse time.
type Record struct {
	Address common.Address
	Balance *big.Int
}

// Parse builds a Record from hex/decimal string inputs as they arrive over
// the wire. addressHex may carry an optional "0x" prefix and any case; it is
// canonicalised to lowercase. balanceDec must be a base-10 integer that fits
// in 256 bits.
func Parse(addressHex, balanceDec string) (Record, error) {
	addr, err := parseAddress(addressHex)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrBadAddress, err)
	}

	balance, ok := new(big.Int).SetString(balanceDec, 10)
	if !ok || balance.Sign() < 0 || balance.BitLen() > 256 {
		return Record{}, fmt.Errorf("%w: %q", ErrBadBalance, balanceDec)
	}

	return Record{Address: addr, Balance: balance}, nil
}

func parseAddress(addressHex string) (common.Address, error) {
	s := strings.ToLower(strings.TrimPrefix(addressHex, "0x"))
	if len(s) != 2*common.AddressLength {
		return common.Address{}, fmt.Errorf("expected %d hex chars, got %d", 2*common.AddressLength, len(s))
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not valid hex: %q", addressHex)
	}
	return common.HexToAddress(s), nil
}

// Packed returns the address bytes followed by the balance's minimal
// big-endian representation (no fixed-width zero-padding): the address
// is always 20 bytes, but the balance contributes only as many bytes as
// its magnitude needs, and none at all when it is zero — matching
// big.Int.Bytes() exactly. This is the encoding the source this service
// is modeled on actually produces (its packer does not pad the integer
// out to a fixed uint256 width), not Solidity bytecode's
// abi.encodePacked(address, uint256), which always spends 32 bytes on
// the integer; the wire-compatibility requirement here is with that
// source, byte for byte.
func (r Record) Packed() []byte {
	out := make([]byte, 0, common.AddressLength+32)
	out = append(out, r.Address.Bytes()...)
	out = append(out, r.Balance.Bytes()...)
	return out
}

// Compare implements the total order spec.md §3 mandates: lexicographic on
// the packed byte representation. Two records with the same address but
// different balances are ordered by balance, not treated as equal. Because
// the balance contributes a variable number of bytes, this is a plain
// byte-slice lexicographic compare, not a fixed-width one: shorter is only
// "less" where it is a strict prefix of the longer sequence.
func Compare(a, b Record) int {
	return bytes.Compare(a.Packed(), b.Packed())
}

// Equal reports whether a and b have identical packed encodings.
func Equal(a, b Record) bool {
	return Compare(a, b) == 0
}

// AddressHex returns the canonical lowercase "0x"-prefixed hex address.
func (r Record) AddressHex() string {
	return strings.ToLower(r.Address.Hex())
}
