package domain

import "context"

// SemanticEngine compiles model text and runs queries against compiled models.
// It is the only way the publisher touches the modelling language.
type SemanticEngine interface {
	// Compile compiles req.Text. When req.Base is set the text extends that
	// artifact, which is how notebook statements build on earlier ones.
	Compile(ctx context.Context, req CompileRequest) (CompiledArtifact, error)

	// Run executes one query against a compiled artifact.
	Run(ctx context.Context, artifact CompiledArtifact, q EngineQuery) (*EngineResult, error)
}

// CompileRequest is the input to SemanticEngine.Compile.
type CompileRequest struct {
	// URL locates the text on disk; relative imports resolve against it.
	URL         string
	Text        string
	Base        CompiledArtifact
	Connections ConnectionLookup
}

// CompiledArtifact is the engine's opaque compiled model.
type CompiledArtifact interface {
	// Sources returns every source visible in the compiled model.
	Sources() []SourceInfo
	// Queries returns the named queries declared so far.
	Queries() []QueryInfo
	// Imports returns the absolute URLs imported by the most recent compile step.
	Imports() []string
	// HasFinalQuery reports whether the most recent step ends in a runnable query.
	HasFinalQuery() bool
}

// EngineQuery selects what SemanticEngine.Run executes. Exactly one of
// Query, QueryName, or Final is used.
//
// The row limit is RowLimit when positive, else the limit the selected query
// declares, else DefaultRowLimit.
type EngineQuery struct {
	SourceName      string
	QueryName       string
	Query           string
	Final           bool
	RowLimit        int
	DefaultRowLimit int
}

// EngineResult is the engine's result for one query.
type EngineResult struct {
	SQL    string
	Result *SQLResult
}

// ConnectionLookup resolves connections by name for the engine.
type ConnectionLookup interface {
	Lookup(name string) (Connection, error)
}

// ConnectionMap is a ConnectionLookup over a plain map.
type ConnectionMap map[string]Connection

// Lookup implements ConnectionLookup.
func (m ConnectionMap) Lookup(name string) (Connection, error) {
	c, ok := m[name]
	if !ok {
		return nil, ErrConnectionNotFound("connection %q not found", name)
	}
	return c, nil
}

// ScheduleExecutor performs the work of a fired schedule. The publisher only
// keeps run bookkeeping; execution is delegated.
type ScheduleExecutor interface {
	Execute(ctx context.Context, run ScheduledRun) error
}

// ScheduledRun identifies what a firing schedule targets.
type ScheduledRun struct {
	ProjectName string
	PackageName string
	ModelPath   string
	SourceName  string
	ViewName    string
	QueryName   string
	Action      ScheduleAction
	Connection  string
	Argument    string
}
