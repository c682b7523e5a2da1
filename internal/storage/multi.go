package storage

import (
	"errors"

	"hookGuard/internal/model"
)

// Multi fans every batch out to several sinks and joins their errors.
type Multi []Storage

func (m Multi) PutOutcomes(outcomes []model.SwapOutcome) error {
	var errs []error
	for _, s := range m {
		if err := s.PutOutcomes(outcomes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PutPoolStats(stats []model.PoolStats) error {
	var errs []error
	for _, s := range m {
		if err := s.PutPoolStats(stats); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
