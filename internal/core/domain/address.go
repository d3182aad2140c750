package domain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account identifier. The zero value is not a valid address.
type Address common.Address

// ParseAddress validates and canonicalizes a 0x-prefixed, 40 hex character address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || (s[:2] != "0x" && s[:2] != "0X") {
		return Address{}, fmt.Errorf("%w: %q must be 0x followed by 40 hex characters", ErrInvalidAddress, s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q is not hex", ErrInvalidAddress, s)
	}
	var a Address
	copy(a[:], raw)
	if a.IsZero() {
		return Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether every byte of the address is zero.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the canonical lowercase form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Common converts to the go-ethereum representation.
func (a Address) Common() common.Address {
	return common.Address(a)
}

// Topic returns the address left-padded to 32 bytes, as it appears in an indexed log topic.
func (a Address) Topic() common.Hash {
	return common.BytesToHash(a[:])
}

// Equal compares canonical forms.
func (a Address) Equal(other Address) bool {
	return a == other
}

func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AddressFromTopic extracts the address held in the low 20 bytes of a log topic.
func AddressFromTopic(topic common.Hash) Address {
	var a Address
	copy(a[:], topic[12:])
	return a
}

// TxHash identifies a ledger transaction.
type TxHash common.Hash

// ParseTxHash validates a 0x-prefixed, 64 hex character transaction hash.
func ParseTxHash(s string) (TxHash, error) {
	s = strings.TrimSpace(s)
	if len(s) != 66 || (s[:2] != "0x" && s[:2] != "0X") {
		return TxHash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return TxHash{}, fmt.Errorf("invalid transaction hash %q: %w", s, err)
	}
	var h TxHash
	copy(h[:], raw)
	if h.IsZero() {
		return TxHash{}, fmt.Errorf("invalid transaction hash %q: zero hash", s)
	}
	return h, nil
}

// MustParseTxHash is ParseTxHash for tests.
func MustParseTxHash(s string) TxHash {
	h, err := ParseTxHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h TxHash) IsZero() bool {
	return h == TxHash{}
}

// String returns the canonical lowercase form.
func (h TxHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h TxHash) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return []byte{}, nil
	}
	return []byte(h.String()), nil
}

func (h *TxHash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = TxHash{}
		return nil
	}
	parsed, err := ParseTxHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashSet is a set of transaction hashes.
type HashSet map[TxHash]struct{}

func NewHashSet(hashes ...TxHash) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

func (s HashSet) Has(h TxHash) bool {
	_, ok := s[h]
	return ok
}

func (s HashSet) Add(h TxHash) {
	s[h] = struct{}{}
}
