package domain

import (
	"context"
	"time"
)

// BeliefUpdateStore persists the append-only history of belief transitions.
type BeliefUpdateStore interface {
	Append(ctx context.Context, u *BeliefUpdate) error
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]BeliefUpdate, error)
	DeleteBySubject(ctx context.Context, subjectID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// InferenceCache stores serialized inference responses keyed by request fingerprint.
// A miss returns ok=false and a nil error.
type InferenceCache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}
