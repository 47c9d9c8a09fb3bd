// Package model wraps one model or notebook file: it validates the path,
// compiles the file through the semantic engine once, caches the outcome,
// and runs queries against the compiled result.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"model-publisher/internal/domain"
)

// DefaultRowLimit bounds query results when neither the request nor the
// query declares a limit.
const DefaultRowLimit = 1000

// Metrics holds the instruments recorded while compiling models.
type Metrics struct {
	compileDuration metric.Float64Histogram
}

// NewMetrics creates the model instruments on meter. A nil meter records nothing.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("model-publisher/model")
	}
	h, err := meter.Float64Histogram("publisher.model.compile.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent compiling a model or notebook"))
	if err != nil {
		h, _ = noop.NewMeterProvider().Meter("").Float64Histogram("")
	}
	return &Metrics{compileDuration: h}
}

// Deps holds the collaborators of a Model.
type Deps struct {
	Engine          domain.SemanticEngine
	Logger          *slog.Logger
	Metrics         *Metrics
	DefaultRowLimit int
}

// Model is an immutable compiled model or notebook. A model that failed to
// load keeps its error and returns it from every accessor.
type Model struct {
	packageName string
	path        string
	kind        domain.ModelKind

	engine          domain.SemanticEngine
	connections     domain.ConnectionMap
	defaultRowLimit int

	artifact      domain.CompiledArtifact
	cellArtifacts []domain.CompiledArtifact
	compiled      *domain.CompiledModel
	dataStyles    map[string]any
	err           error
}

// Create loads the model at modelPath, relative to packagePath. It never
// fails: a bad path or a compilation error becomes the model's terminal state.
func Create(ctx context.Context, deps Deps, packageName, packagePath, modelPath string, connections map[string]domain.Connection) *Model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	m := &Model{
		packageName:     packageName,
		path:            modelPath,
		engine:          deps.Engine,
		connections:     domain.ConnectionMap(connections),
		defaultRowLimit: deps.DefaultRowLimit,
	}
	if m.defaultRowLimit <= 0 {
		m.defaultRowLimit = DefaultRowLimit
	}
	logger = logger.With("component", "model", "package", packageName, "model", modelPath)

	abs, text, err := m.validatePath(packagePath)
	if err != nil {
		m.err = err
		logger.Warn("model not loaded", "error", err)
		return m
	}

	start := time.Now()
	switch m.kind {
	case domain.ModelKindNotebook:
		m.err = m.compileNotebook(ctx, abs, text)
	default:
		m.err = m.compileModel(ctx, abs, text)
	}
	outcome := "success"
	if m.err != nil {
		outcome = "error"
		logger.Warn("model failed to compile", "error", m.err)
	}
	metrics.compileDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("kind", string(m.kind)),
		attribute.String("outcome", outcome),
	))

	if m.err == nil {
		m.dataStyles = loadDataStyles(abs, logger)
	}
	return m
}

// validatePath checks the suffix, confinement, and existence of the model
// file and returns its absolute path and contents.
func (m *Model) validatePath(packagePath string) (string, string, error) {
	kind, ok := domain.ModelKindForPath(m.path)
	if !ok {
		return "", "", domain.ErrModelNotFound("%s is not a model or notebook file", m.path)
	}
	m.kind = kind

	abs := filepath.Join(packagePath, m.path)
	rel, err := filepath.Rel(packagePath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", domain.ErrModelNotFound("model %s is outside package %s", m.path, m.packageName)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", "", domain.ErrModelNotFound("model %s not found in package %s", m.path, m.packageName)
	}
	data, err := os.ReadFile(abs) //nolint:gosec // path confined to the package directory
	if err != nil {
		return "", "", domain.ErrModelNotFound("model %s: %v", m.path, err)
	}
	return abs, string(data), nil
}

func (m *Model) compileModel(ctx context.Context, abs, text string) error {
	artifact, err := m.engine.Compile(ctx, domain.CompileRequest{
		URL:         fileURL(abs),
		Text:        text,
		Connections: m.connections,
	})
	if err != nil {
		return compilationError(m.path, err)
	}
	m.artifact = artifact
	m.compiled = m.newCompiledModel(artifact)
	return nil
}

func (m *Model) newCompiledModel(artifact domain.CompiledArtifact) *domain.CompiledModel {
	cm := &domain.CompiledModel{
		Resource:    fmt.Sprintf("/packages/%s/models/%s", m.packageName, filepath.ToSlash(m.path)),
		PackageName: m.packageName,
		Path:        m.path,
		Kind:        m.kind,
		Sources:     []domain.SourceInfo{},
		Queries:     []domain.QueryInfo{},
	}
	if artifact != nil {
		cm.Sources = artifact.Sources()
		cm.Queries = artifact.Queries()
	}
	return cm
}

// Path returns the model path relative to its package.
func (m *Model) Path() string { return m.path }

// Kind returns whether the model is a single-query model or a notebook.
// It is empty when the path has no recognised suffix.
func (m *Model) Kind() domain.ModelKind { return m.kind }

// Err returns the terminal load error, if any.
func (m *Model) Err() error { return m.err }

// CompiledModel returns the cached compilation output.
func (m *Model) CompiledModel() (*domain.CompiledModel, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.compiled, nil
}

// Summary describes the model for listings, including its load error.
func (m *Model) Summary() domain.ModelSummary {
	s := domain.ModelSummary{Path: m.path, Kind: m.kind}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	return s
}

// compilationError wraps engine failures as ModelCompilationError unless the
// engine already classified them.
func compilationError(path string, err error) error {
	var mce *domain.ModelCompilationError
	if errors.As(err, &mce) {
		return err
	}
	var mnf *domain.ModelNotFoundError
	if errors.As(err, &mnf) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrModelCompilation("%s: %v", path, err)
}

func fileURL(abs string) string {
	return "file://" + filepath.ToSlash(abs)
}

func pathFromURL(u string) string {
	return filepath.FromSlash(strings.TrimPrefix(u, "file://"))
}
