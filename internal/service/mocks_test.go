package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Harshitk-cp/bayesd/internal/domain"
)

// MockBeliefUpdateStore mocks the BeliefUpdateStore interface.
type MockBeliefUpdateStore struct {
	mock.Mock
}

func (m *MockBeliefUpdateStore) Append(ctx context.Context, u *domain.BeliefUpdate) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockBeliefUpdateStore) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.BeliefUpdate, error) {
	args := m.Called(ctx, subjectID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BeliefUpdate), args.Error(1)
}

func (m *MockBeliefUpdateStore) DeleteBySubject(ctx context.Context, subjectID string) (int64, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBeliefUpdateStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockInferenceCache mocks the InferenceCache interface.
type MockInferenceCache struct {
	mock.Mock
}

func (m *MockInferenceCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockInferenceCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockInferenceCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
