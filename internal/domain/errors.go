package domain

import "errors"

var (
	// ErrInvalidGrade is returned for grades outside 1..4. Nothing is mutated.
	ErrInvalidGrade = errors.New("invalid grade")
	// ErrScheduleMissing is returned by storage when a card has no schedule row.
	ErrScheduleMissing = errors.New("schedule missing")
	// ErrConcurrentModification means the schedule changed between read and write.
	ErrConcurrentModification = errors.New("schedule was modified concurrently, please retry")
	// ErrConsistencyViolation means a schedule write and its review event diverged.
	ErrConsistencyViolation = errors.New("schedule and review log are inconsistent")

	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidDailyGoal = errors.New("daily goal must be between 1 and 1000")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrInvalidSource    = errors.New("invalid module source")
)
