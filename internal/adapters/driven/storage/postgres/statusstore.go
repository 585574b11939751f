package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
)

// statusStore implements driven.EmbeddingStatusStore.
type statusStore struct {
	store *Store
}

var _ driven.EmbeddingStatusStore = (*statusStore)(nil)

const statusColumns = "document_id, status, content_hash, committed, total, rearm, pending_hash, last_error, updated_at"

// querier is satisfied by the pool and by pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Get returns the re-embedding state of a document.
func (s *statusStore) Get(ctx context.Context, documentID int64) (*domain.EmbeddingState, error) {
	return getState(ctx, s.store.db, documentID, "")
}

// MarkPending records a content-change event.
func (s *statusStore) MarkPending(ctx context.Context, documentID int64, contentHash string, force bool) (bool, error) {
	var claimable bool
	err := s.store.withTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		st, err := getState(ctx, tx, documentID, " FOR UPDATE")
		if errors.Is(err, domain.ErrNotFound) {
			created, insertErr := insertPending(ctx, tx, domain.NewPendingState(documentID, contentHash, now))
			if insertErr != nil || created {
				claimable = created
				return insertErr
			}
			// A concurrent writer created the row first.
			st, err = getState(ctx, tx, documentID, " FOR UPDATE")
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
	tag, err := s.store.db.Exec(ctx, `
		UPDATE embedding_status SET status = $1, updated_at = $2
		WHERE document_id = $3 AND status = $4
	`, string(domain.StatusEmbedding), time.Now().UTC(), documentID, string(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claiming %d: %w", documentID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveProgress records committed chunks for contentHash.
func (s *statusStore) SaveProgress(ctx context.Context, documentID int64, contentHash string, committed, total int) error {
	tag, err := s.store.db.Exec(ctx, `
		UPDATE embedding_status SET content_hash = $1, committed = $2, total = $3, updated_at = $4
		WHERE document_id = $5
	`, contentHash, committed, total, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("saving progress of %d: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete moves embedding -> clean, or -> pending when re-armed.
func (s *statusStore) Complete(ctx context.Context, documentID int64) (bool, error) {
	var rearmed bool
	err := s.store.withTx(ctx, func(tx pgx.Tx) error {
		st, err := getState(ctx, tx, documentID, " FOR UPDATE")
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
	return s.store.withTx(ctx, func(tx pgx.Tx) error {
		st, err := getState(ctx, tx, documentID, " FOR UPDATE")
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
	return s.store.withTx(ctx, func(tx pgx.Tx) error {
		st, err := getState(ctx, tx, documentID, " FOR UPDATE")
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
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY document_id"

	rows, err := s.store.db.Query(ctx, query, args...)
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
	if _, err := s.store.db.Exec(ctx,
		"DELETE FROM embedding_status WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("deleting embedding status: %w", err)
	}
	return nil
}

func getState(ctx context.Context, q querier, documentID int64, lock string) (*domain.EmbeddingState, error) {
	row := q.QueryRow(ctx,
		"SELECT "+statusColumns+" FROM embedding_status WHERE document_id = $1"+lock, documentID)
	st, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return st, err
}

// insertPending creates a state row unless one exists; reports whether it did.
func insertPending(ctx context.Context, tx pgx.Tx, st domain.EmbeddingState) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO embedding_status (document_id, status, content_hash, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id) DO NOTHING
	`, st.DocumentID, string(st.Status), st.ContentHash, st.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("creating embedding status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func putState(ctx context.Context, tx pgx.Tx, st domain.EmbeddingState) error {
	_, err := tx.Exec(ctx, `
		UPDATE embedding_status SET
			status = $2, content_hash = $3, committed = $4, total = $5,
			rearm = $6, pending_hash = $7, last_error = $8, updated_at = $9
		WHERE document_id = $1
	`, st.DocumentID, string(st.Status), st.ContentHash, st.Committed, st.Total,
		st.Rearm, st.PendingHash, st.LastError, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("writing embedding status: %w", err)
	}
	return nil
}

func scanState(row pgx.Row) (*domain.EmbeddingState, error) {
	var (
		st     domain.EmbeddingState
		status string
	)
	if err := row.Scan(&st.DocumentID, &status, &st.ContentHash, &st.Committed, &st.Total,
		&st.Rearm, &st.PendingHash, &st.LastError, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning embedding status: %w", err)
	}
	st.Status = domain.EmbeddingStatus(status)
	return &st, nil
}
