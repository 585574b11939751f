package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
)

// statusStore implements driven.EmbeddingStatusStore.
//
// Claim is a single conditional UPDATE. The other transitions read the row
// and write it back inside an immediate transaction, which holds the
// database write lock for their duration.
type statusStore struct {
	store *Store
}

var _ driven.EmbeddingStatusStore = (*statusStore)(nil)

const statusColumns = `document_id, status, content_hash, committed, total, rearm, pending_hash, last_error, updated_at`

// Get returns the re-embedding state of a document.
func (s *statusStore) Get(ctx context.Context, documentID int64) (*domain.EmbeddingState, error) {
	st, err := getState(ctx, s.store.db, documentID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// MarkPending records a content-change event.
func (s *statusStore) MarkPending(ctx context.Context, documentID int64, contentHash string, force bool) (bool, error) {
	var claimable bool
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		st, err := getState(ctx, tx, documentID)
		if errors.Is(err, domain.ErrNotFound) {
			claimable = true
			return putState(ctx, tx, domain.NewPendingState(documentID, contentHash, now))
		}
		if err != nil {
			return err
		}

		next, ok, changed := st.MarkPending(contentHash, force, now)
		claimable = ok
		if !changed {
			return nil
		}
		return putState(ctx, tx, next)
	})
	if err != nil {
		return false, fmt.Errorf("marking %d pending: %w", documentID, err)
	}
	return claimable, nil
}

// Claim moves pending -> embedding. The WHERE clause is the compare-and-swap.
func (s *statusStore) Claim(ctx context.Context, documentID int64) (bool, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE embedding_status SET status = ?, updated_at = ?
		WHERE document_id = ? AND status = ?
	`, domain.StatusEmbedding, time.Now().UTC(), documentID, domain.StatusPending)
	if err != nil {
		return false, fmt.Errorf("claiming %d: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming %d: %w", documentID, err)
	}
	return n == 1, nil
}

// SaveProgress records committed chunks for contentHash.
func (s *statusStore) SaveProgress(ctx context.Context, documentID int64, contentHash string, committed, total int) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE embedding_status SET content_hash = ?, committed = ?, total = ?, updated_at = ?
		WHERE document_id = ?
	`, contentHash, committed, total, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("saving progress of %d: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving progress of %d: %w", documentID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete moves embedding -> clean, or -> pending when re-armed.
func (s *statusStore) Complete(ctx context.Context, documentID int64) (bool, error) {
	var rearmed bool
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		st, err := getState(ctx, tx, documentID)
		if err != nil {
			return err
		}
		next, r, changed := st.Complete(time.Now().UTC())
		rearmed = r
		if !changed {
			return nil
		}
		return putState(ctx, tx, next)
	})
	return rearmed, err
}

// Fail moves embedding -> failed.
func (s *statusStore) Fail(ctx context.Context, documentID int64, reason string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		st, err := getState(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if next, changed := st.Fail(reason, time.Now().UTC()); changed {
			return putState(ctx, tx, next)
		}
		return nil
	})
}

// Release moves embedding -> pending, keeping progress.
func (s *statusStore) Release(ctx context.Context, documentID int64) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		st, err := getState(ctx, tx, documentID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if next, changed := st.Release(time.Now().UTC()); changed {
			return putState(ctx, tx, next)
		}
		return nil
	})
}

// List returns states with the given status, or all when empty, by document ID.
func (s *statusStore) List(ctx context.Context, status domain.EmbeddingStatus) ([]domain.EmbeddingState, error) {
	query := "SELECT " + statusColumns + " FROM embedding_status"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY document_id"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embedding status: %w", err)
	}
	defer rows.Close()

	states := make([]domain.EmbeddingState, 0)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embedding status: %w", err)
	}
	return states, nil
}

// Delete removes the state record of a document.
func (s *statusStore) Delete(ctx context.Context, documentID int64) error {
	if _, err := s.store.db.ExecContext(ctx,
		"DELETE FROM embedding_status WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting embedding status: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getState(ctx context.Context, q querier, documentID int64) (*domain.EmbeddingState, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+statusColumns+" FROM embedding_status WHERE document_id = ?", documentID)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return st, err
}

func putState(ctx context.Context, q querier, st domain.EmbeddingState) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO embedding_status (`+statusColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			status = excluded.status,
			content_hash = excluded.content_hash,
			committed = excluded.committed,
			total = excluded.total,
			rearm = excluded.rearm,
			pending_hash = excluded.pending_hash,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, st.DocumentID, st.Status, st.ContentHash, st.Committed, st.Total,
		st.Rearm, st.PendingHash, st.LastError, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("writing embedding status: %w", err)
	}
	return nil
}

func scanState(row scanner) (*domain.EmbeddingState, error) {
	var (
		st     domain.EmbeddingState
		status string
	)
	if err := row.Scan(&st.DocumentID, &status, &st.ContentHash, &st.Committed, &st.Total,
		&st.Rearm, &st.PendingHash, &st.LastError, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning embedding status: %w", err)
	}
	st.Status = domain.EmbeddingStatus(status)
	return &st, nil
}
