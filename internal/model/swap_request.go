package model

// SwapRequest is one swap to replay, read from a JSONL file.
type SwapRequest struct {
	ID         string `json:"id"`
	Pool       string `json:"pool"`
	Party      string `json:"party"`
	Router     string `json:"router,omitempty"`
	ZeroForOne bool   `json:"zero_for_one"`
	// AmountSpecified is a signed decimal; negative means exact input.
	AmountSpecified string `json:"amount_specified"`
	PriceLimitX96   string `json:"price_limit_x96,omitempty"`
}
