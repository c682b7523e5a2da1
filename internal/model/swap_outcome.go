package model

// Outcome statuses.
const (
	StatusSettled  = "settled"
	StatusRejected = "rejected"
)

// SwapOutcome records what happened to a swap request.
type SwapOutcome struct {
	RequestID   string `json:"request_id"`
	Pool        string `json:"pool"`
	PoolID      string `json:"pool_id"`
	Party       string `json:"party"`
	Router      string `json:"router"`
	Status      string `json:"status"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
	Stage       string `json:"stage,omitempty"`
	Error       string `json:"error,omitempty"`
	ProcessedAt string `json:"processed_at"`
}
