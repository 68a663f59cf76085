package dto

type WithdrawRequest struct {
	RetrievalCode string `json:"retrieval_code"` // hex
}

type ExtendExpiryRequest struct {
	ExtraSeconds uint64 `json:"extra_seconds"`
}

// AdjustFeeRequest accepts the fee either in nanoTON or as a decimal TON
// string; fee_ton wins when both are set.
type AdjustFeeRequest struct {
	FeeNano uint64 `json:"fee_nano"`
	FeeTON  string `json:"fee_ton,omitempty"`
}

type AdjustThresholdRequest struct {
	Ratio uint64 `json:"ratio"` // parts per thousand
}

// RetrievalCodeRequest: either the whole secret or its parts, which are
// joined in order.
type RetrievalCodeRequest struct {
	Secret    string   `json:"secret"`
	Fragments []string `json:"fragments"`
}

type SecureCodeRequest struct {
	Claimant      string `json:"claimant"`       // raw или user-friendly
	RetrievalCode string `json:"retrieval_code"` // hex
}
