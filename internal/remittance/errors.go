package remittance

import "errors"

// Every rejected operation returns one of these (possibly wrapped). A
// rejection never leaves partial state behind.
var (
	ErrInvalidInput  = errors.New("remittance: invalid input")
	ErrUnauthorized  = errors.New("remittance: unauthorized")
	ErrNotFound      = errors.New("remittance: payment not found")
	ErrAlreadyExists = errors.New("remittance: payment already exists")
	ErrExpired       = errors.New("remittance: payment expired")
	ErrNotYetDue     = errors.New("remittance: payment not yet expired")
	ErrLimitExceeded = errors.New("remittance: limit exceeded")
	ErrOverflow      = errors.New("remittance: arithmetic overflow")
	ErrUnderflow     = errors.New("remittance: arithmetic underflow")
	ErrPaused        = errors.New("remittance: ledger is paused")
)

// ErrPayoutNotCommitted: the transfer went out but the transaction that
// settles the payment did not commit. Not a rejection; needs reconciliation.
var ErrPayoutNotCommitted = errors.New("remittance: payout sent but not committed")

var rejections = []error{
	ErrInvalidInput, ErrUnauthorized, ErrNotFound, ErrAlreadyExists, ErrExpired,
	ErrNotYetDue, ErrLimitExceeded, ErrOverflow, ErrUnderflow, ErrPaused,
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRejection reports whether err is a ledger rule violation (the caller can
// fix the input or wait) as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
