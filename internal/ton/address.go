package ton

import (
	"fmt"
	"strings"

	"github.com/remittance/backend/internal/remittance"
	"github.com/xssnick/tonutils-go/address"
)

// FromTON converts a chain address into a ledger identity.
func FromTON(a *address.Address) (remittance.Address, error) {
	if a == nil {
		return remittance.Address{}, fmt.Errorf("%w: nil address", remittance.ErrInvalidInput)
	}
	wc := a.Workchain()
	if wc < -128 || wc > 127 {
		return remittance.Address{}, fmt.Errorf("%w: workchain %d", remittance.ErrInvalidInput, wc)
	}
	return remittance.NewAddress(int8(wc), a.Data())
}

// ToTON renders a ledger identity as a non-bounceable chain address, the
// form used for payouts to user wallets.
func ToTON(a remittance.Address, testnet bool) *address.Address {
	out := address.NewAddress(0, byte(a.Workchain()), a.Account())
	out.SetBounce(false)
	out.SetTestnetOnly(testnet)
	return out
}

// ParseAddress accepts both the raw "wc:hex" form and user-friendly
// base64 (EQ.../UQ...) addresses.
func ParseAddress(s string) (remittance.Address, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		return remittance.ParseRawAddress(s)
	}
	a, err := address.ParseAddr(s)
	if err != nil {
		return remittance.Address{}, fmt.Errorf("%w: %v", remittance.ErrInvalidInput, err)
	}
	return FromTON(a)
}
