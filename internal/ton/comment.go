package ton

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/remittance/backend/internal/remittance"
	"github.com/xssnick/tonutils-go/tlb"
)

// Deposit is what a sender encodes in the comment of a transfer to the
// hot wallet: "<prefix>:<secureCodeHex>:<expiresAtUnix>".
type Deposit struct {
	SecureCode remittance.Hash
	ExpiresAt  uint64
}

func FormatDepositComment(prefix string, d Deposit) string {
	return fmt.Sprintf("%s:%s:%d", prefix, d.SecureCode.Hex(), d.ExpiresAt)
}

// ParseDepositComment reports ok=false for comments that are not deposit
// instructions at all, and an error for ones that are but are malformed.
func ParseDepositComment(prefix, comment string) (d Deposit, ok bool, err error) {
	parts := strings.Split(strings.TrimSpace(comment), ":")
	if len(parts) == 0 || !strings.EqualFold(parts[0], prefix) {
		return d, false, nil
	}
	if len(parts) != 3 {
		return d, true, fmt.Errorf("%w: deposit comment must be %s:<code>:<expires_at>", remittance.ErrInvalidInput, prefix)
	}
	if d.SecureCode, err = remittance.ParseHash(parts[1]); err != nil {
		return d, true, err
	}
	if d.ExpiresAt, err = strconv.ParseUint(parts[2], 10, 64); err != nil {
		return d, true, fmt.Errorf("%w: expires_at %q is not a unix timestamp", remittance.ErrInvalidInput, parts[2])
	}
	return d, true, nil
}

// ExtractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func ExtractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
