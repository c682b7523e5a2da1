package storage

import "hookGuard/internal/model"

// Storage defines a sink for replay results.
type Storage interface {
	PutOutcomes(outcomes []model.SwapOutcome) error
	PutPoolStats(stats []model.PoolStats) error
}
