package ton

import (
	"errors"
	"testing"

	"github.com/remittance/backend/internal/remittance"
	"github.com/xssnick/tonutils-go/address"
)

func TestAddressConversion(t *testing.T) {
	account := make([]byte, 32)
	account[0], account[31] = 0xde, 0xad
	for _, wc := range []int8{0, -1} {
		a, err := remittance.NewAddress(wc, account)
		if err != nil {
			t.Fatal(err)
		}

		ta := ToTON(a, true)
		if ta.Workchain() != int32(wc) {
			t.Errorf("workchain = %d, want %d", ta.Workchain(), wc)
		}
		if ta.IsBounceable() {
			t.Error("payout address should be non-bounceable")
		}

		back, err := FromTON(ta)
		if err != nil {
			t.Fatal(err)
		}
		if back != a {
			t.Errorf("round trip: got %s, want %s", back, a)
		}

		// friendly form parses to the same identity
		parsed, err := ParseAddress(ta.String())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != a {
			t.Errorf("friendly parse: got %s, want %s", parsed, a)
		}
		raw, err := ParseAddress(a.String())
		if err != nil || raw != a {
			t.Errorf("raw parse: got %s, %v", raw, err)
		}
	}
}

func TestParseAddressRejects(t *testing.T) {
	for _, bad := range []string{"", "not-an-address", "0:zz"} {
		if _, err := ParseAddress(bad); !errors.Is(err, remittance.ErrInvalidInput) {
			t.Errorf("ParseAddress(%q) = %v, want ErrInvalidInput", bad, err)
		}
	}
	if _, err := FromTON((*address.Address)(nil)); err == nil {
		t.Error("nil address accepted")
	}
}
