package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/belief"
	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
)

const defaultExpirerInterval = 10 * time.Minute

// ExpirerService evicts idle belief subjects from memory and prunes persisted
// history past its retention.
type ExpirerService struct {
	updater   *belief.Updater
	store     domain.BeliefUpdateStore
	idleTTL   time.Duration
	retention time.Duration
	metrics   *telemetry.Metrics
	logger    *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewExpirerService creates an expirer. A nil store or zero retention skips pruning.
func NewExpirerService(updater *belief.Updater, store domain.BeliefUpdateStore, idleTTL, retention time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *ExpirerService {
	return &ExpirerService{
		updater:   updater,
		store:     store,
		idleTTL:   idleTTL,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
		interval:  defaultExpirerInterval,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("belief expirer started",
			zap.Duration("interval", s.interval),
			zap.Duration("idle_ttl", s.idleTTL))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("belief expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer.
func (s *ExpirerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *ExpirerService) run(ctx context.Context) {
	now := s.now()

	if s.idleTTL > 0 {
		if evicted := s.updater.EvictIdle(s.idleTTL, now); evicted > 0 {
			s.metrics.AddEvictedSubjects(evicted)
			s.logger.Info("evicted idle belief subjects", zap.Int("count", evicted))
		}
		s.metrics.SetActiveSubjects(len(s.updater.Subjects()))
	}

	if s.store == nil || s.retention <= 0 {
		return
	}
	deleted, err := s.store.DeleteOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Error("failed to prune belief history", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("pruned belief history", zap.Int64("count", deleted))
	}
}
