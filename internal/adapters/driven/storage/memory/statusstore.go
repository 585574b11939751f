package memory

import (
	"context"
	"sort"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// Get returns the re-embedding state of a document.
func (s *Store) Get(_ context.Context, documentID int64) (*domain.EmbeddingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

// MarkPending records a content-change event.
func (s *Store) MarkPending(_ context.Context, documentID int64, contentHash string, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	st, ok := s.status[documentID]
	if !ok {
		s.status[documentID] = domain.NewPendingState(documentID, contentHash, now)
		return true, nil
	}
	next, claimable, changed := st.MarkPending(contentHash, force, now)
	if changed {
		s.status[documentID] = next
	}
	return claimable, nil
}

// Claim moves pending -> embedding.
func (s *Store) Claim(_ context.Context, documentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[documentID]
	if !ok || st.Status != domain.StatusPending {
		return false, nil
	}
	st.Status = domain.StatusEmbedding
	st.UpdatedAt = time.Now()
	s.status[documentID] = st
	return true, nil
}

// SaveProgress records committed chunks for contentHash.
func (s *Store) SaveProgress(_ context.Context, documentID int64, contentHash string, committed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[documentID]
	if !ok {
		return domain.ErrNotFound
	}
	st.ContentHash = contentHash
	st.Committed = committed
	st.Total = total
	st.UpdatedAt = time.Now()
	s.status[documentID] = st
	return nil
}

// Complete moves embedding -> clean, or -> pending when re-armed.
func (s *Store) Complete(_ context.Context, documentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[documentID]
	if !ok {
		return false, domain.ErrNotFound
	}
	next, rearmed, changed := st.Complete(time.Now())
	if changed {
		s.status[documentID] = next
	}
	return rearmed, nil
}

// Fail moves embedding -> failed.
func (s *Store) Fail(_ context.Context, documentID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[documentID]
	if !ok {
		return domain.ErrNotFound
	}
	if next, changed := st.Fail(reason, time.Now()); changed {
		s.status[documentID] = next
	}
	return nil
}

// Release moves embedding -> pending, keeping progress.
func (s *Store) Release(_ context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[documentID]
	if !ok {
		return nil
	}
	if next, changed := st.Release(time.Now()); changed {
		s.status[documentID] = next
	}
	return nil
}

// List returns states with the given status, or all when empty, by document ID.
func (s *Store) List(_ context.Context, status domain.EmbeddingStatus) ([]domain.EmbeddingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.EmbeddingState, 0, len(s.status))
	for _, st := range s.status {
		if status != "" && st.Status != status {
			continue
		}
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DocumentID < result[j].DocumentID })
	return result, nil
}

// Delete removes the state record of a document.
func (s *Store) Delete(_ context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.status, documentID)
	return nil
}
