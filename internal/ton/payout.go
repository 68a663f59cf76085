package ton

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/remittance/backend/internal/remittance"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

var ErrPayoutsDisabled = errors.New("payouts are disabled: TON_WALLET_SEED is not set")

// HotWallet sends ledger payouts from the custodial wallet. Transfer waits
// for the message to be included so a failure surfaces before the ledger
// commits.
type HotWallet struct {
	w       *wallet.Wallet
	testnet bool
	log     *zap.Logger
}

var _ remittance.Transferer = (*HotWallet)(nil)

func NewHotWallet(api tonapi.APIClientWrapped, seed string, testnet bool, log *zap.Logger) (*HotWallet, error) {
	words := strings.Fields(seed)
	if len(words) == 0 {
		return nil, ErrPayoutsDisabled
	}
	w, err := wallet.FromSeed(api, words, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("open hot wallet: %w", err)
	}
	return &HotWallet{w: w, testnet: testnet, log: log}, nil
}

func (h *HotWallet) Address() *address.Address {
	return h.w.WalletAddress()
}

func (h *HotWallet) Transfer(ctx context.Context, to remittance.Address, amount uint64, memo string) error {
	dst := ToTON(to, h.testnet)
	if err := h.w.Transfer(ctx, dst, tlb.FromNanoTONU(amount), memo, true); err != nil {
		h.log.Error("payout failed",
			zap.String("to", dst.String()),
			zap.String("amount_ton", FormatTON(amount)),
			zap.Error(err),
		)
		return err
	}
	h.log.Info("payout sent",
		zap.String("to", dst.String()),
		zap.String("amount_ton", FormatTON(amount)),
		zap.String("memo", memo),
	)
	return nil
}

// DisabledWallet refuses every payout, for nodes that hold no wallet key.
// Operations that move no value still work.
type DisabledWallet struct{}

func (DisabledWallet) Transfer(context.Context, remittance.Address, uint64, string) error {
	return ErrPayoutsDisabled
}
