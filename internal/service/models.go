package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/model"
	"github.com/Harshitk-cp/bayesd/internal/telemetry"
)

type EvaluateResponse struct {
	Model         string  `json:"model"`
	Likelihood    float64 `json:"likelihood"`
	LogLikelihood float64 `json:"log_likelihood"`
}

// ModelService manages the model library shared by every inference call.
type ModelService struct {
	library *model.Library
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func NewModelService(library *model.Library, metrics *telemetry.Metrics, logger *zap.Logger) *ModelService {
	return &ModelService{library: library, metrics: metrics, logger: logger}
}

func (s *ModelService) List() []model.Entry {
	return s.library.Entries()
}

// Put declares (or replaces) the model called name.
func (s *ModelService) Put(name string, spec model.Spec) (*model.Entry, error) {
	if spec.Name != "" && spec.Name != name {
		return nil, fmt.Errorf("%w: body name %q does not match %q", domain.ErrInvalidModel, spec.Name, name)
	}
	spec.Name = name
	if _, err := s.library.RegisterSpec(spec); err != nil {
		if spec.Training != nil {
			s.metrics.ObserveModelFit(string(spec.Type), err)
		}
		return nil, err
	}
	if spec.Training != nil {
		s.metrics.ObserveModelFit(string(spec.Type), nil)
	}
	return s.entry(name)
}

func (s *ModelService) Fit(name string, obs model.Observations) (*model.Entry, error) {
	m, err := s.library.Get(name)
	if err != nil {
		return nil, err
	}
	err = s.library.Fit(name, obs)
	s.metrics.ObserveModelFit(string(m.Type()), err)
	if err != nil {
		s.logger.Warn("model fit failed", zap.String("model", name), zap.Error(err))
		return nil, err
	}
	return s.entry(name)
}

func (s *ModelService) Evaluate(name string, q model.Query) (*EvaluateResponse, error) {
	m, err := s.library.Get(name)
	if err != nil {
		return nil, err
	}
	ll, err := model.LogLikelihood(m, q)
	if err != nil {
		return nil, err
	}
	resp := &EvaluateResponse{Model: name, Likelihood: math.Exp(ll), LogLikelihood: ll}
	if math.IsInf(ll, -1) {
		// JSON cannot carry -Inf.
		resp.LogLikelihood = -math.MaxFloat64
	}
	return resp, nil
}

func (s *ModelService) Remove(name string) error {
	if !s.library.Remove(name) {
		return fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
	}
	return nil
}

func (s *ModelService) entry(name string) (*model.Entry, error) {
	for _, e := range s.library.Entries() {
		if e.Name == name {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
}
