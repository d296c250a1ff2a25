package testutils

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// ErrInjected is returned by FailingVectorDriver for every failing operation.
var ErrInjected = errors.New("injected vector failure")

// FailingVectorDriver wraps a vector.Driver and fails selected operations.
type FailingVectorDriver struct {
	vector.Driver

	FailUpsert  atomic.Bool
	FailFetch   atomic.Bool
	FailList    atomic.Bool
	FailQuery   atomic.Bool
	FailDelete  atomic.Bool
	FailStats   atomic.Bool
	FailReady   atomic.Bool
	UpsertCalls atomic.Int64

	// FailUpserts fails that many upserts before letting them through.
	FailUpserts atomic.Int64
}

// NewFailingVectorDriver wraps inner.
func NewFailingVectorDriver(inner vector.Driver) *FailingVectorDriver {
	return &FailingVectorDriver{Driver: inner}
}

func (f *FailingVectorDriver) Upsert(ctx context.Context, ns string, records []vector.Record) error {
	f.UpsertCalls.Add(1)
	if f.FailUpsert.Load() || f.FailUpserts.Add(-1) >= 0 {
		return ErrInjected
	}
	return f.Driver.Upsert(ctx, ns, records)
}

func (f *FailingVectorDriver) Fetch(ctx context.Context, ns string, ids []string) (map[string]vector.Record, error) {
	if f.FailFetch.Load() {
		return nil, ErrInjected
	}
	return f.Driver.Fetch(ctx, ns, ids)
}

func (f *FailingVectorDriver) ListIDs(ctx context.Context, ns, cursor string, limit int) ([]string, string, error) {
	if f.FailList.Load() {
		return nil, "", ErrInjected
	}
	return f.Driver.ListIDs(ctx, ns, cursor, limit)
}

func (f *FailingVectorDriver) Query(ctx context.Context, ns string, vec []float32, topK int) ([]vector.Match, error) {
	if f.FailQuery.Load() {
		return nil, ErrInjected
	}
	return f.Driver.Query(ctx, ns, vec, topK)
}

func (f *FailingVectorDriver) DeleteNamespace(ctx context.Context, ns string) error {
	if f.FailDelete.Load() {
		return ErrInjected
	}
	return f.Driver.DeleteNamespace(ctx, ns)
}

func (f *FailingVectorDriver) Stats(ctx context.Context, ns string) (vector.Stats, error) {
	if f.FailStats.Load() {
		return vector.Stats{}, ErrInjected
	}
	return f.Driver.Stats(ctx, ns)
}

func (f *FailingVectorDriver) EnsureReady(ctx context.Context) error {
	if f.FailReady.Load() {
		return ErrInjected
	}
	return f.Driver.EnsureReady(ctx)
}

// StaticResolver is a vector.Resolver that always returns Driver, or Err
// when set. A nil Driver with a nil Err resolves to vector.ErrNotConfigured.
type StaticResolver struct {
	Driver vector.Driver
	Err    error
}

func (s StaticResolver) Resolve(context.Context) (vector.Driver, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Driver == nil {
		return nil, vector.ErrNotConfigured
	}
	return s.Driver, nil
}
