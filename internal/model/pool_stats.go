package model

// PoolStats summarises a replay for one pool.
type PoolStats struct {
	Pool          string `json:"pool"`
	PoolID        string `json:"pool_id"`
	Currency0     string `json:"currency0"`
	Currency1     string `json:"currency1"`
	SwapCount     uint64 `json:"swap_count"`
	RejectedCount uint64 `json:"rejected_count"`
	// OverreachCount counts swaps refused because an extension took too much.
	OverreachCount uint64 `json:"overreach_count"`
	Volume0        string `json:"volume0"`
	Volume1        string `json:"volume1"`
	Reserve0       string `json:"reserve0"`
	Reserve1       string `json:"reserve1"`
	UpdatedAt      string `json:"updated_at"`
}
