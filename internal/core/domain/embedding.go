package domain

import "time"

// EmbeddingStatus is the re-embedding state of a document.
type EmbeddingStatus string

// Re-embedding states.
const (
	// StatusClean means the chunks match the current content.
	StatusClean EmbeddingStatus = "clean"

	// StatusPending means the content changed and awaits a claimant.
	StatusPending EmbeddingStatus = "pending"

	// StatusEmbedding means exactly one claimant is re-embedding the document.
	StatusEmbedding EmbeddingStatus = "embedding"

	// StatusFailed is terminal until the next content-change event.
	StatusFailed EmbeddingStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s EmbeddingStatus) IsValid() bool {
	switch s {
	case StatusClean, StatusPending, StatusEmbedding, StatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s EmbeddingStatus) String() string {
	return string(s)
}

// EmbeddingState is the persisted state machine record of one document.
type EmbeddingState struct {
	// DocumentID identifies the document.
	DocumentID int64

	// Status is the current state.
	Status EmbeddingStatus

	// ContentHash is the hash of the content the current (or last) job embeds.
	ContentHash string

	// Committed is the number of chunks already written for ContentHash.
	Committed int

	// Total is the number of chunks ContentHash splits into, once known.
	Total int

	// Rearm is set when content changed while a job was running.
	Rearm bool

	// PendingHash is the content hash that re-armed a running job.
	PendingHash string

	// LastError holds the failure reason of a failed job.
	LastError string

	// UpdatedAt is the time of the last transition.
	UpdatedAt time.Time
}

// CanResume reports whether a job for hash may continue from Committed.
func (s *EmbeddingState) CanResume(hash string) bool {
	return s != nil && s.ContentHash == hash && s.Committed > 0
}

// The transitions below are pure. A store loads the current record, applies
// one of them and writes the result back inside a single atomic unit; the
// boolean results tell the store whether anything changed.

// NewPendingState is the record created by the first content-change event.
func NewPendingState(documentID int64, contentHash string, now time.Time) EmbeddingState {
	return EmbeddingState{
		DocumentID:  documentID,
		Status:      StatusPending,
		ContentHash: contentHash,
		UpdatedAt:   now,
	}
}

// MarkPending applies a content-change event. claimable reports whether the
// document now awaits a claimant; changed reports whether the record must
// be written back.
func (s EmbeddingState) MarkPending(contentHash string, force bool, now time.Time) (next EmbeddingState, claimable, changed bool) {
	switch s.Status {
	case StatusEmbedding:
		if s.ContentHash == contentHash && !force {
			return s, false, false
		}
		s.Rearm = true
		s.PendingHash = contentHash
		s.UpdatedAt = now
		return s, false, true

	case StatusClean:
		if s.ContentHash == contentHash && !force {
			return s, false, false
		}
	}

	// Progress only carries over for the content it was made for.
	if s.ContentHash != contentHash || force {
		s.Committed, s.Total = 0, 0
	}
	s.Status = StatusPending
	s.ContentHash = contentHash
	s.LastError = ""
	s.UpdatedAt = now
	return s, true, true
}

// Complete ends a job: embedding -> clean, or -> pending when re-armed.
func (s EmbeddingState) Complete(now time.Time) (next EmbeddingState, rearmed, changed bool) {
	if s.Status != StatusEmbedding {
		return s, false, false
	}
	rearmed = s.Rearm
	s.Status = StatusClean
	if rearmed {
		s.Status = StatusPending
		s.ContentHash = s.PendingHash
	}
	s.Committed, s.Total = 0, 0
	s.Rearm, s.PendingHash = false, ""
	s.LastError = ""
	s.UpdatedAt = now
	return s, rearmed, true
}

// Fail moves embedding -> failed. A job re-armed by a newer change goes
// back to pending instead, since the failure concerned older content.
func (s EmbeddingState) Fail(reason string, now time.Time) (next EmbeddingState, changed bool) {
	if s.Status != StatusEmbedding {
		return s, false
	}
	s.Status = StatusFailed
	s.LastError = reason
	if s.Rearm {
		s.Status = StatusPending
		s.ContentHash = s.PendingHash
		s.Committed, s.Total = 0, 0
	}
	s.Rearm, s.PendingHash = false, ""
	s.UpdatedAt = now
	return s, true
}

// Release hands an interrupted job back: embedding -> pending. Progress is
// kept unless a newer change re-armed the job.
func (s EmbeddingState) Release(now time.Time) (next EmbeddingState, changed bool) {
	if s.Status != StatusEmbedding {
		return s, false
	}
	s.Status = StatusPending
	if s.Rearm {
		s.ContentHash = s.PendingHash
		s.Committed, s.Total = 0, 0
		s.Rearm, s.PendingHash = false, ""
	}
	s.UpdatedAt = now
	return s, true
}
