// Package belief tracks per-subject belief states that evolve as evidence arrives.
package belief

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/inference"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// minDecayedWeight drops evidence whose decayed weight no longer moves the posterior.
const minDecayedWeight = 1e-12

// Updater owns the belief states of all tracked subjects. Distinct subjects update
// in parallel; updates to one subject are serialized by that subject's lock.
type Updater struct {
	engine *inference.Engine
	cfg    domain.BeliefUpdaterConfig
	logger *zap.Logger

	mu     sync.RWMutex
	states map[string]*State
}

func NewUpdater(engine *inference.Engine, cfg domain.BeliefUpdaterConfig, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		engine: engine,
		cfg:    cfg.WithDefaults(),
		logger: logger,
		states: make(map[string]*State),
	}
}

func (u *Updater) Config() domain.BeliefUpdaterConfig { return u.cfg }

// Track starts tracking subjectID with the given hypotheses. Tracking an existing
// subject replaces its state.
func (u *Updater) Track(subjectID string, hyps []domain.Hypothesis, bcfg domain.BayesianConfig) (*State, error) {
	if subjectID == "" {
		return nil, &domain.InvalidHypothesisSetError{Reason: "subject id is required"}
	}
	bcfg = bcfg.WithDefaults()
	acc, err := u.engine.Stream(hyps, bcfg)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	initial := acc.Snapshot()
	s := &State{
		subjectID:    subjectID,
		hypotheses:   append([]domain.Hypothesis(nil), hyps...),
		initial:      initial,
		beliefs:      initial.Clone(),
		bayes:        bcfg,
		cfg:          u.cfg,
		engine:       u.engine,
		createdAt:    now,
		lastActivity: now,
	}

	u.mu.Lock()
	_, replaced := u.states[subjectID]
	u.states[subjectID] = s
	u.mu.Unlock()

	u.logger.Info("tracking belief subject",
		zap.String("subject_id", subjectID),
		zap.Int("hypotheses", len(hyps)),
		zap.Bool("replaced", replaced))
	return s, nil
}

func (u *Updater) State(subjectID string) (*State, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	s, ok := u.states[subjectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubjectNotFound, subjectID)
	}
	return s, nil
}

// Forget stops tracking subjectID. It reports whether the subject existed.
func (u *Updater) Forget(subjectID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.states[subjectID]
	delete(u.states, subjectID)
	return ok
}

func (u *Updater) Subjects() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, 0, len(u.states))
	for id := range u.states {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EvictIdle forgets subjects with no activity since now-ttl and returns how many were removed.
func (u *Updater) EvictIdle(ttl time.Duration, now time.Time) int {
	cutoff := now.Add(-ttl)

	u.mu.Lock()
	defer u.mu.Unlock()
	evicted := 0
	for id, s := range u.states {
		if s.LastActivity().Before(cutoff) {
			delete(u.states, id)
			evicted++
		}
	}
	return evicted
}

// State is the evolving belief distribution of one subject.
type State struct {
	mu sync.Mutex

	subjectID  string
	hypotheses []domain.Hypothesis
	initial    domain.Distribution
	beliefs    domain.Distribution
	bayes      domain.BayesianConfig
	cfg        domain.BeliefUpdaterConfig
	engine     *inference.Engine

	evidence     []domain.Evidence
	history      []domain.BeliefUpdate
	sequence     int
	stableStreak int
	createdAt    time.Time
	lastActivity time.Time
}

func (s *State) SubjectID() string { return s.subjectID }

// Update folds ev into the belief state using strategy, or the configured default when
// strategy is empty, and records the transition.
func (s *State) Update(ev domain.Evidence, strategy domain.UpdateStrategy) (*domain.BeliefUpdate, error) {
	if strategy == "" {
		strategy = s.cfg.DefaultStrategy
	}
	if !domain.ValidUpdateStrategy(string(strategy)) {
		return nil, &domain.UnsupportedMethodError{Method: string(strategy), Reason: "unknown update strategy"}
	}
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.beliefs.Clone()
	log := append(s.evidenceLog(), ev)

	var (
		res *domain.InferenceResult
		err error
	)
	switch strategy {
	case domain.StrategyImmediate:
		res, err = s.fold(s.withPriors(s.beliefs), []domain.Evidence{ev})
	case domain.StrategyExponentialDecay:
		res, err = s.fold(s.withPriors(s.initial), s.decayed(log))
	case domain.StrategyWindowed:
		window := log
		if len(window) > s.cfg.WindowSize {
			window = window[len(window)-s.cfg.WindowSize:]
		}
		res, err = s.fold(s.withPriors(s.initial), window)
	}
	if err != nil {
		return nil, err
	}

	posterior := res.Distribution()
	tv := domain.TotalVariation(prior, posterior)
	if tv < s.cfg.ConvergenceThreshold {
		s.stableStreak++
	} else {
		s.stableStreak = 0
	}

	now := time.Now().UTC()
	s.sequence++
	upd := domain.BeliefUpdate{
		ID:             uuid.NewString(),
		SubjectID:      s.subjectID,
		Sequence:       s.sequence,
		Prior:          prior,
		Evidence:       ev,
		Posterior:      posterior,
		Strategy:       strategy,
		TotalVariation: tv,
		IsStable:       s.stableStreak >= s.cfg.StabilityWindow,
		Degenerate:     res.DegenerateEvidence,
		Timestamp:      now,
	}

	s.beliefs = posterior
	s.evidence = trim(log, s.cfg.MaxHistory)
	s.history = trim(append(s.history, upd), s.cfg.MaxHistory)
	s.lastActivity = now

	out := upd
	out.Prior = upd.Prior.Clone()
	out.Posterior = upd.Posterior.Clone()
	return &out, nil
}

func (s *State) evidenceLog() []domain.Evidence {
	return append(make([]domain.Evidence, 0, len(s.evidence)+1), s.evidence...)
}

func (s *State) fold(hyps []domain.Hypothesis, evidence []domain.Evidence) (*domain.InferenceResult, error) {
	cfg := s.bayes
	if len(evidence) > cfg.MaxIterations {
		cfg.MaxIterations = len(evidence)
	}
	acc, err := s.engine.Stream(hyps, cfg)
	if err != nil {
		return nil, err
	}
	for _, ev := range evidence {
		if err := acc.Fold(ev); err != nil {
			return nil, err
		}
	}
	return acc.Result(), nil
}

func (s *State) withPriors(d domain.Distribution) []domain.Hypothesis {
	out := make([]domain.Hypothesis, len(s.hypotheses))
	for i, h := range s.hypotheses {
		out[i] = h.WithPrior(d[h.Key()])
	}
	return out
}

// decayed returns log with each item's weight multiplied by DecayFactor^age, where age
// counts the newer items after it. Items that decay to nothing are dropped.
func (s *State) decayed(log []domain.Evidence) []domain.Evidence {
	out := make([]domain.Evidence, 0, len(log))
	n := len(log)
	for i, ev := range log {
		w := ev.Weight * math.Pow(s.cfg.DecayFactor, float64(n-1-i))
		if w < minDecayedWeight {
			continue
		}
		ev.Weight = w
		out = append(out, ev)
	}
	return out
}

func trim[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return append([]T(nil), items[len(items)-limit:]...)
	}
	return items
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() domain.BeliefSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.BeliefSnapshot{
		SubjectID:     s.subjectID,
		Beliefs:       s.beliefs.Clone(),
		Hypotheses:    append([]domain.Hypothesis(nil), s.hypotheses...),
		EvidenceCount: len(s.evidence),
		UpdateCount:   s.sequence,
		IsStable:      s.stableStreak >= s.cfg.StabilityWindow,
		StableStreak:  s.stableStreak,
		LastUpdatedAt: s.lastActivity,
	}
}

// History returns the retained updates, oldest first.
func (s *State) History() []domain.BeliefUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BeliefUpdate(nil), s.history...)
}

// Reset returns the subject to its initial priors and clears its evidence and history.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beliefs = s.initial.Clone()
	s.evidence = nil
	s.history = nil
	s.sequence = 0
	s.stableStreak = 0
	s.lastActivity = time.Now().UTC()
}

func (s *State) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
