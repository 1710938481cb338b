// Package testutil provides shared fixtures and mock implementations of domain
// interfaces for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"mra/internal/domain"
	"mra/internal/engine"
)

// === Tabular Engine Mock ===

// MockEngine implements domain.TabularEngine. Each call is recorded; calls without
// an override are delegated to an in-memory engine.
type MockEngine struct {
	GroupByCubeFn func(ctx context.Context, base domain.Relation, keys []string, spec domain.AggregationSpec) ([]domain.GroupingSet, error)
	GroupRowsFn   func(ctx context.Context, rel domain.Relation, columns []string) ([]domain.RowGroup, error)
	JoinFn        func(ctx context.Context, left, right domain.Relation, on []string) (domain.Relation, error)

	mu    sync.Mutex
	Calls []string
	mem   engine.Memory
}

func (m *MockEngine) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

// CallCount returns how often the named method was called.
func (m *MockEngine) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}

// GroupByCube implements the interface method for testing.
func (m *MockEngine) GroupByCube(ctx context.Context, base domain.Relation, keys []string, spec domain.AggregationSpec) ([]domain.GroupingSet, error) {
	m.record("GroupByCube")
	if m.GroupByCubeFn != nil {
		return m.GroupByCubeFn(ctx, base, keys, spec)
	}
	return m.mem.GroupByCube(ctx, base, keys, spec)
}

// Select implements the interface method for testing.
func (m *MockEngine) Select(ctx context.Context, rel domain.Relation, keep func(domain.Row) bool) (domain.Relation, error) {
	m.record("Select")
	return m.mem.Select(ctx, rel, keep)
}

// Project implements the interface method for testing.
func (m *MockEngine) Project(ctx context.Context, rel domain.Relation, columns []string) (domain.Relation, error) {
	m.record("Project")
	return m.mem.Project(ctx, rel, columns)
}

// Concat implements the interface method for testing.
func (m *MockEngine) Concat(ctx context.Context, rels []domain.Relation) (domain.Relation, error) {
	m.record("Concat")
	return m.mem.Concat(ctx, rels)
}

// GroupRows implements the interface method for testing.
func (m *MockEngine) GroupRows(ctx context.Context, rel domain.Relation, columns []string) ([]domain.RowGroup, error) {
	m.record("GroupRows")
	if m.GroupRowsFn != nil {
		return m.GroupRowsFn(ctx, rel, columns)
	}
	return m.mem.GroupRows(ctx, rel, columns)
}

// Join implements the interface method for testing.
func (m *MockEngine) Join(ctx context.Context, left, right domain.Relation, on []string) (domain.Relation, error) {
	m.record("Join")
	if m.JoinFn != nil {
		return m.JoinFn(ctx, left, right, on)
	}
	return m.mem.Join(ctx, left, right, on)
}

// === Plug-in Mocks ===

// MockTransformation implements domain.Transformation for testing.
type MockTransformation struct {
	SourceName string
	TargetName string
	TransMode  domain.TransformMode
	ApplyFn    func(region domain.RelationTuple, rel domain.Relation) (domain.Output, error)

	mu      sync.Mutex
	Regions []domain.RelationTuple // regions seen, for assertions
}

// Source implements the interface method for testing.
func (m *MockTransformation) Source() string { return m.SourceName }

// Target implements the interface method for testing.
func (m *MockTransformation) Target() string { return m.TargetName }

// Mode implements the interface method for testing.
func (m *MockTransformation) Mode() domain.TransformMode { return m.TransMode }

// Apply implements the interface method for testing.
func (m *MockTransformation) Apply(region domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
	m.mu.Lock()
	m.Regions = append(m.Regions, region)
	m.mu.Unlock()
	if m.ApplyFn != nil {
		return m.ApplyFn(region, rel)
	}
	return domain.Single(rel), nil
}

// MockPredicate implements domain.Predicate for testing.
type MockPredicate struct {
	EvaluateFn func(region domain.RelationTuple, features domain.Features) (bool, error)
	Calls      int
}

// Evaluate implements the interface method for testing.
func (m *MockPredicate) Evaluate(region domain.RelationTuple, features domain.Features) (bool, error) {
	m.Calls++
	if m.EvaluateFn != nil {
		return m.EvaluateFn(region, features)
	}
	panic("unexpected call to MockPredicate.Evaluate")
}
