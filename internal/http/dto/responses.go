package dto

import (
	"time"

	"github.com/remittance/backend/internal/remittance"
	"github.com/remittance/backend/internal/ton"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ProofPayloadResponse struct {
	Payload   string    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CodeResponse struct {
	Code string `json:"code"`
}

type LedgerResponse struct {
	Owner             string `json:"owner"`
	FeeNano           uint64 `json:"fee_nano"`
	FeeTON            string `json:"fee_ton"`
	FeeThresholdRatio uint64 `json:"fee_threshold_ratio"`
	FeeThresholdNano  uint64 `json:"fee_threshold_nano"`
	FeePoolNano       uint64 `json:"fee_pool_nano"`
	FeePoolTON        string `json:"fee_pool_ton"`
	Running           bool   `json:"running"`
	DepositAddress    string `json:"deposit_address,omitempty"`
	DepositPrefix     string `json:"deposit_comment_prefix"`
}

func NewLedgerResponse(st *remittance.State, depositAddress, prefix string) LedgerResponse {
	return LedgerResponse{
		Owner:             st.Owner.String(),
		FeeNano:           st.Fee.Amount,
		FeeTON:            ton.FormatTON(st.Fee.Amount),
		FeeThresholdRatio: st.Fee.ThresholdRatio,
		FeeThresholdNano:  st.Fee.Threshold(),
		FeePoolNano:       st.FeePool,
		FeePoolTON:        ton.FormatTON(st.FeePool),
		Running:           st.Running,
		DepositAddress:    depositAddress,
		DepositPrefix:     prefix,
	}
}

type PaymentResponse struct {
	SecureCode string    `json:"secure_code"`
	Sender     string    `json:"sender"`
	AmountNano uint64    `json:"amount_nano"`
	AmountTON  string    `json:"amount_ton"`
	ExpiresAt  uint64    `json:"expires_at"`
	Expired    bool      `json:"expired"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewPaymentResponse(p *remittance.Payment, now time.Time) PaymentResponse {
	return PaymentResponse{
		SecureCode: p.SecureCode.Hex(),
		Sender:     p.Sender.String(),
		AmountNano: p.Amount,
		AmountTON:  ton.FormatTON(p.Amount),
		ExpiresAt:  p.ExpiresAt,
		Expired:    remittance.IsExpired(now, p.ExpiresAt),
		CreatedAt:  p.CreatedAt,
	}
}
