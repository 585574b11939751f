package domain

import "time"

// SweepResult records one run of the periodic chunk sweep.
type SweepResult struct {
	StartedAt time.Time
	EndedAt   time.Time

	// Scheduled holds the documents flagged for re-embedding.
	Scheduled []int64

	// Error is empty on success.
	Error string
}

// Success reports whether the sweep completed without error.
func (r SweepResult) Success() bool {
	return r.Error == ""
}
