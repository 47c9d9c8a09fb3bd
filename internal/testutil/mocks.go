// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"model-publisher/internal/domain"
)

// === Connection Mock ===

// MockConnection implements domain.Connection for testing.
type MockConnection struct {
	ConnName    string
	ConnDialect domain.Dialect
	RunSQLFn    func(ctx context.Context, query string, opts domain.RunSQLOptions) (*domain.SQLResult, error)
	TestFn      func(ctx context.Context) error

	mu      sync.Mutex
	closed  bool
	queries []string
}

// Name implements the interface method for testing.
func (m *MockConnection) Name() string { return m.ConnName }

// Dialect implements the interface method for testing.
func (m *MockConnection) Dialect() domain.Dialect {
	if m.ConnDialect == "" {
		return domain.DialectPostgres
	}
	return m.ConnDialect
}

// Attributes implements the interface method for testing.
func (m *MockConnection) Attributes() domain.ConnectionAttributes {
	return domain.ConnectionAttributes{DialectName: string(m.Dialect())}
}

// RunSQL implements the interface method for testing.
func (m *MockConnection) RunSQL(ctx context.Context, query string, opts domain.RunSQLOptions) (*domain.SQLResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.RunSQLFn != nil {
		return m.RunSQLFn(ctx, query, opts)
	}
	panic("unexpected call to MockConnection.RunSQL")
}

// Test implements the interface method for testing.
func (m *MockConnection) Test(ctx context.Context) error {
	if m.TestFn != nil {
		return m.TestFn(ctx)
	}
	return nil
}

// Close implements the interface method for testing.
func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockConnection) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Queries returns the SQL passed to RunSQL, in call order.
func (m *MockConnection) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// === Semantic Engine Mock ===

// MockEngine implements domain.SemanticEngine for testing.
type MockEngine struct {
	CompileFn func(ctx context.Context, req domain.CompileRequest) (domain.CompiledArtifact, error)
	RunFn     func(ctx context.Context, artifact domain.CompiledArtifact, q domain.EngineQuery) (*domain.EngineResult, error)

	mu       sync.Mutex
	compiled []string
}

// Compile implements the interface method for testing.
func (m *MockEngine) Compile(ctx context.Context, req domain.CompileRequest) (domain.CompiledArtifact, error) {
	m.mu.Lock()
	m.compiled = append(m.compiled, req.URL)
	m.mu.Unlock()
	if m.CompileFn != nil {
		return m.CompileFn(ctx, req)
	}
	panic("unexpected call to MockEngine.Compile")
}

// Run implements the interface method for testing.
func (m *MockEngine) Run(ctx context.Context, artifact domain.CompiledArtifact, q domain.EngineQuery) (*domain.EngineResult, error) {
	if m.RunFn != nil {
		return m.RunFn(ctx, artifact, q)
	}
	panic("unexpected call to MockEngine.Run")
}

// CompiledURLs returns the URL of every Compile call, in call order.
func (m *MockEngine) CompiledURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.compiled...)
}

// === Compiled Artifact Stub ===

// StubArtifact implements domain.CompiledArtifact with fixed values.
type StubArtifact struct {
	SourceList []domain.SourceInfo
	QueryList  []domain.QueryInfo
	ImportList []string
	Final      bool
}

// Sources implements the interface method for testing.
func (a *StubArtifact) Sources() []domain.SourceInfo { return a.SourceList }

// Queries implements the interface method for testing.
func (a *StubArtifact) Queries() []domain.QueryInfo { return a.QueryList }

// Imports implements the interface method for testing.
func (a *StubArtifact) Imports() []string { return a.ImportList }

// HasFinalQuery implements the interface method for testing.
func (a *StubArtifact) HasFinalQuery() bool { return a.Final }

// === Schedule Executor Mock ===

// MockExecutor implements domain.ScheduleExecutor for testing.
type MockExecutor struct {
	ExecuteFn func(ctx context.Context, run domain.ScheduledRun) error

	mu   sync.Mutex
	runs []domain.ScheduledRun
}

// Execute implements the interface method for testing.
func (m *MockExecutor) Execute(ctx context.Context, run domain.ScheduledRun) error {
	m.mu.Lock()
	m.runs = append(m.runs, run)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, run)
	}
	return nil
}

// Runs returns every run passed to Execute.
func (m *MockExecutor) Runs() []domain.ScheduledRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ScheduledRun(nil), m.runs...)
}
