package remittance

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	// HashSize is the width of retrieval and secure codes.
	HashSize = 32

	// AddressSize is the width of a ledger identity: one workchain byte
	// followed by the 32-byte account hash.
	AddressSize = 33
)

// Hash is a retrieval code or a secure retrieval code.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero hash, which is never a valid code.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return "0x" + h.Hex()
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash accepts 64 hex characters with an optional 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("%w: code must be %d hex characters, got %d", ErrInvalidInput, HashSize*2, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: code is not hex: %v", ErrInvalidInput, err)
	}
	return h, nil
}

// HashFromBytes copies b into a Hash. b must be exactly HashSize long.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: code must be %d bytes, got %d", ErrInvalidInput, HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Address is an opaque caller identity. The ledger only compares addresses
// for equality; converting to and from chain formats lives in package ton.
type Address [AddressSize]byte

// NewAddress builds an Address from a workchain id and a 32-byte account hash.
func NewAddress(workchain int8, account []byte) (Address, error) {
	var a Address
	if len(account) != AddressSize-1 {
		return a, fmt.Errorf("%w: account hash must be %d bytes, got %d", ErrInvalidInput, AddressSize-1, len(account))
	}
	a[0] = byte(workchain)
	copy(a[1:], account)
	return a, nil
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Workchain() int8 {
	return int8(a[0])
}

func (a Address) Account() []byte {
	b := make([]byte, AddressSize-1)
	copy(b, a[1:])
	return b
}

// String renders the raw "workchain:hex" form.
func (a Address) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain(), hex.EncodeToString(a[1:]))
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseRawAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseRawAddress parses the "workchain:hex" form produced by Address.String.
func ParseRawAddress(raw string) (Address, error) {
	wcText, hashHex, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: invalid raw address %q", ErrInvalidInput, raw)
	}
	wc, err := strconv.ParseInt(wcText, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("%w: invalid workchain %q", ErrInvalidInput, wcText)
	}
	account, err := hex.DecodeString(hashHex)
	if err != nil {
		return Address{}, fmt.Errorf("%w: invalid address hash hex: %v", ErrInvalidInput, err)
	}
	return NewAddress(int8(wc), account)
}
