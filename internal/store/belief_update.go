package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultHistoryLimit = 100

type BeliefUpdateStore struct {
	db *pgxpool.Pool
}

func NewBeliefUpdateStore(db *pgxpool.Pool) *BeliefUpdateStore {
	return &BeliefUpdateStore{db: db}
}

func (s *BeliefUpdateStore) Append(ctx context.Context, u *domain.BeliefUpdate) error {
	prior, err := json.Marshal(u.Prior)
	if err != nil {
		return fmt.Errorf("encoding prior: %w", err)
	}
	posterior, err := json.Marshal(u.Posterior)
	if err != nil {
		return fmt.Errorf("encoding posterior: %w", err)
	}
	evidence, err := json.Marshal(u.Evidence)
	if err != nil {
		return fmt.Errorf("encoding evidence: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO belief_updates (id, subject_id, sequence, strategy, prior, posterior, evidence, total_variation, is_stable, degenerate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.SubjectID, u.Sequence, u.Strategy, prior, posterior, evidence, u.TotalVariation, u.IsStable, u.Degenerate, u.Timestamp,
	)
	return err
}

// ListBySubject returns the most recent updates of a subject, oldest first.
func (s *BeliefUpdateStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.BeliefUpdate, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, subject_id, sequence, strategy, prior, posterior, evidence, total_variation, is_stable, degenerate, created_at
		 FROM (
		     SELECT * FROM belief_updates WHERE subject_id = $1 ORDER BY sequence DESC LIMIT $2
		 ) recent
		 ORDER BY sequence ASC`,
		subjectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []domain.BeliefUpdate
	for rows.Next() {
		u, err := scanBeliefUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, ErrNotFound
	}
	return updates, nil
}

func scanBeliefUpdate(row pgx.Row) (*domain.BeliefUpdate, error) {
	var (
		u                          domain.BeliefUpdate
		prior, posterior, evidence []byte
	)
	if err := row.Scan(&u.ID, &u.SubjectID, &u.Sequence, &u.Strategy, &prior, &posterior, &evidence,
		&u.TotalVariation, &u.IsStable, &u.Degenerate, &u.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prior, &u.Prior); err != nil {
		return nil, fmt.Errorf("decoding prior: %w", err)
	}
	if err := json.Unmarshal(posterior, &u.Posterior); err != nil {
		return nil, fmt.Errorf("decoding posterior: %w", err)
	}
	if err := json.Unmarshal(evidence, &u.Evidence); err != nil {
		return nil, fmt.Errorf("decoding evidence: %w", err)
	}
	return &u, nil
}

func (s *BeliefUpdateStore) DeleteBySubject(ctx context.Context, subjectID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM belief_updates WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOlderThan prunes history recorded before cutoff.
func (s *BeliefUpdateStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM belief_updates WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
