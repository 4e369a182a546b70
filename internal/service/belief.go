package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/belief"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/store"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
)

const defaultHistoryLimit = 100

type TrackRequest struct {
	Hypotheses []domain.Hypothesis    `json:"hypotheses"`
	Config     *domain.BayesianConfig `json:"config,omitempty"`
}

type UpdateRequest struct {
	Evidence domain.Evidence       `json:"evidence"`
	Strategy domain.UpdateStrategy `json:"strategy,omitempty"`
}

// BeliefService tracks per-subject belief states and optionally persists every
// transition to a BeliefUpdateStore.
type BeliefService struct {
	updater  *belief.Updater
	store    domain.BeliefUpdateStore
	defaults domain.BayesianConfig
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

func NewBeliefService(updater *belief.Updater, defaults domain.BayesianConfig, metrics *telemetry.Metrics, logger *zap.Logger) *BeliefService {
	return &BeliefService{
		updater:  updater,
		defaults: defaults.WithDefaults(),
		metrics:  metrics,
		logger:   logger,
	}
}

// SetStore enables persistence of belief updates.
func (s *BeliefService) SetStore(st domain.BeliefUpdateStore) {
	s.store = st
}

func (s *BeliefService) Updater() *belief.Updater {
	return s.updater
}

func (s *BeliefService) Track(ctx context.Context, subjectID string, req TrackRequest) (*domain.BeliefSnapshot, error) {
	cfg := s.defaults
	if req.Config != nil {
		cfg = req.Config.WithDefaults()
	}
	st, err := s.updater.Track(subjectID, req.Hypotheses, cfg)
	if err != nil {
		return nil, err
	}
	s.metrics.SetActiveSubjects(len(s.updater.Subjects()))
	// A new episode restarts sequence numbers, so the previous one's rows must go.
	if err := s.purgeHistory(ctx, subjectID); err != nil {
		return nil, err
	}
	snap := st.Snapshot()
	return &snap, nil
}

// Update folds one evidence item into the subject's beliefs. The in-memory state is
// authoritative; a persistence failure is logged and does not fail the update.
func (s *BeliefService) Update(ctx context.Context, subjectID string, req UpdateRequest) (*domain.BeliefUpdate, error) {
	st, err := s.updater.State(subjectID)
	if err != nil {
		return nil, err
	}
	u, err := st.Update(req.Evidence, req.Strategy)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveBeliefUpdate(string(u.Strategy), u.IsStable)
	if u.Degenerate {
		s.logger.Warn("belief update hit degenerate evidence",
			zap.String("subject_id", subjectID),
			zap.Int("sequence", u.Sequence))
	}

	if s.store != nil {
		if err := s.store.Append(ctx, u); err != nil {
			s.logger.Error("failed to persist belief update",
				zap.String("subject_id", subjectID),
				zap.String("update_id", u.ID),
				zap.Error(err))
		}
	}
	return u, nil
}

func (s *BeliefService) Snapshot(subjectID string) (*domain.BeliefSnapshot, error) {
	st, err := s.updater.State(subjectID)
	if err != nil {
		return nil, err
	}
	snap := st.Snapshot()
	return &snap, nil
}

// History returns the most recent updates of a subject, oldest first. Subjects no
// longer in memory are served from the store when one is configured.
func (s *BeliefService) History(ctx context.Context, subjectID string, limit int) ([]domain.BeliefUpdate, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	st, err := s.updater.State(subjectID)
	if err == nil {
		h := st.History()
		if len(h) > limit {
			h = h[len(h)-limit:]
		}
		return h, nil
	}
	if s.store == nil {
		return nil, err
	}

	h, serr := s.store.ListBySubject(ctx, subjectID, limit)
	if errors.Is(serr, store.ErrNotFound) {
		return nil, err
	}
	if serr != nil {
		return nil, fmt.Errorf("loading belief history: %w", serr)
	}
	return h, nil
}

// Reset returns the subject to its initial priors. Its persisted history is deleted
// first; if that fails the subject is left untouched.
func (s *BeliefService) Reset(ctx context.Context, subjectID string) (*domain.BeliefSnapshot, error) {
	st, err := s.updater.State(subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.purgeHistory(ctx, subjectID); err != nil {
		return nil, err
	}
	st.Reset()
	snap := st.Snapshot()
	return &snap, nil
}

// Forget drops the subject from memory and deletes its persisted history.
func (s *BeliefService) Forget(ctx context.Context, subjectID string) error {
	existed := s.updater.Forget(subjectID)
	s.metrics.SetActiveSubjects(len(s.updater.Subjects()))

	var deleted int64
	if s.store != nil {
		n, err := s.store.DeleteBySubject(ctx, subjectID)
		if err != nil {
			return fmt.Errorf("deleting belief history: %w", err)
		}
		deleted = n
	}
	if !existed && deleted == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSubjectNotFound, subjectID)
	}
	return nil
}

func (s *BeliefService) purgeHistory(ctx context.Context, subjectID string) error {
	if s.store == nil {
		return nil
	}
	n, err := s.store.DeleteBySubject(ctx, subjectID)
	if err != nil {
		s.logger.Error("failed to clear belief history", zap.String("subject_id", subjectID), zap.Error(err))
		return fmt.Errorf("clearing belief history: %w", err)
	}
	if n > 0 {
		s.logger.Debug("cleared belief history", zap.String("subject_id", subjectID), zap.Int64("rows", n))
	}
	return nil
}

func (s *BeliefService) Subjects() []string {
	return s.updater.Subjects()
}
