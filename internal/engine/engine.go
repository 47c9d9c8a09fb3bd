// Package engine is a small SQL-backed semantic engine. Model text declares
// sources over connections, views over sources, and named queries; queries
// run as plain SQL through the model's connections.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
	"model-publisher/internal/service/storage"
)

// maxImportDepth bounds nested imports.
const maxImportDepth = 16

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][\w$]*(\.[A-Za-z_][\w$]*)*$`)

// Engine implements domain.SemanticEngine.
type Engine struct {
	logger *slog.Logger
}

// New creates an Engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger.With("component", "engine")}
}

// Compile implements domain.SemanticEngine.
func (e *Engine) Compile(ctx context.Context, req domain.CompileRequest) (domain.CompiledArtifact, error) {
	return e.compile(ctx, req, nil)
}

func (e *Engine) compile(ctx context.Context, req domain.CompileRequest, chain []string) (*Artifact, error) {
	var base *Artifact
	if req.Base != nil {
		b, ok := req.Base.(*Artifact)
		if !ok {
			return nil, fmt.Errorf("engine: cannot extend artifact of type %T", req.Base)
		}
		base = b
	}

	decls, problems := parse(req.Text)
	art := newArtifact(req.URL, base)
	var current *source

	for _, d := range decls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch d.kind {
		case declImport:
			imported, err := e.compileImport(ctx, req, d.path, chain)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				problems = append(problems, fmt.Sprintf("line %d: import %s: %v", d.line, d.path, err))
				continue
			}
			art.merge(imported)
			art.imports = append(art.imports, imported.url)

		case declSource:
			src, err := e.compileSource(ctx, req.Connections, d)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				problems = append(problems, fmt.Sprintf("line %d: source %s: %v", d.line, d.name, err))
				continue
			}
			art.addSource(src)
			current = src

		case declView:
			if current == nil {
				problems = append(problems, fmt.Sprintf("line %d: view %s is not preceded by a source", d.line, d.name))
				continue
			}
			current.addView(d.name, d.sql, d.annotations)

		case declQuery:
			if err := art.check(d.ref); err != nil {
				problems = append(problems, fmt.Sprintf("line %d: query %s: %v", d.line, d.name, err))
				continue
			}
			art.addQuery(d.name, d.ref, d.annotations)

		case declRun:
			if err := art.check(d.ref); err != nil {
				problems = append(problems, fmt.Sprintf("line %d: run: %v", d.line, err))
				continue
			}
			ref := d.ref
			art.final = &ref
		}
	}

	if len(problems) > 0 {
		return nil, &domain.ModelCompilationError{Message: "compile " + displayName(req.URL), Problems: problems}
	}
	return art, nil
}

func (e *Engine) compileImport(ctx context.Context, req domain.CompileRequest, path string, chain []string) (*Artifact, error) {
	if len(chain) >= maxImportDepth {
		return nil, fmt.Errorf("imports nested deeper than %d", maxImportDepth)
	}
	url, err := resolveImport(req.URL, path)
	if err != nil {
		return nil, err
	}
	if url == req.URL || slices.Contains(chain, url) {
		return nil, errors.New("import cycle")
	}
	data, err := os.ReadFile(pathFromURL(url)) //nolint:gosec // imports resolve inside the model's package
	if err != nil {
		return nil, err
	}
	e.logger.Debug("compiling import", "url", url)
	return e.compile(ctx, domain.CompileRequest{
		URL:         url,
		Text:        string(data),
		Connections: req.Connections,
	}, append(slices.Clone(chain), req.URL))
}

func (e *Engine) compileSource(ctx context.Context, conns domain.ConnectionLookup, d decl) (*source, error) {
	if conns == nil {
		return nil, fmt.Errorf("no connections available for %q", d.connection)
	}
	conn, err := conns.Lookup(d.connection)
	if err != nil {
		return nil, err
	}

	query := d.sql
	if d.table != "" {
		switch {
		case storage.IsDataFile(d.table):
			query = "SELECT * FROM " + ddl.QuoteLiteral(d.table)
		case tableNamePattern.MatchString(d.table):
			query = "SELECT * FROM " + d.table
		default:
			return nil, fmt.Errorf("invalid table name %q", d.table)
		}
	}

	res, err := conn.RunSQL(ctx, wrapSource(d.name, query)+" LIMIT 0", domain.RunSQLOptions{RowLimit: 1})
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	cols := make([]domain.Column, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = domain.Column{Name: c.Name, Type: storage.NormalizeType(c.Type)}
	}

	return &source{
		info: domain.SourceInfo{
			Name:        d.name,
			Connection:  d.connection,
			Columns:     cols,
			Annotations: d.annotations,
		},
		conn:  conn,
		sql:   query,
		views: make(map[string]string),
	}, nil
}

// Run implements domain.SemanticEngine.
func (e *Engine) Run(ctx context.Context, artifact domain.CompiledArtifact, q domain.EngineQuery) (*domain.EngineResult, error) {
	art, ok := artifact.(*Artifact)
	if !ok {
		return nil, fmt.Errorf("engine: cannot run artifact of type %T", artifact)
	}
	ref, err := art.resolve(q)
	if err != nil {
		return nil, err
	}
	if err := art.check(ref); err != nil {
		return nil, domain.ErrBadRequest("%v", err)
	}

	src := art.sources[ref.source]
	query := wrapSource(ref.source, src.sql)
	if ref.view != "" {
		query = fmt.Sprintf("WITH %s AS (%s) %s", ddl.QuoteIdentifier(ref.source), src.sql, src.views[ref.view])
	}
	limit := q.RowLimit
	if limit <= 0 {
		limit = ref.limit
	}
	if limit <= 0 {
		limit = q.DefaultRowLimit
	}

	e.logger.Debug("running query", "source", ref.source, "view", ref.view, "connection", src.conn.Name())
	res, err := src.conn.RunSQL(ctx, query, domain.RunSQLOptions{RowLimit: limit})
	if err != nil {
		return nil, err
	}
	return &domain.EngineResult{SQL: query, Result: res}, nil
}

// resolve turns an EngineQuery into a reference on the artifact.
func (a *Artifact) resolve(q domain.EngineQuery) (queryRef, error) {
	switch {
	case q.Final:
		if a.final == nil {
			return queryRef{}, domain.ErrBadRequest("model has no final query")
		}
		return *a.final, nil
	case q.Query != "":
		ref, err := parseRef(strings.TrimPrefix(strings.TrimSpace(q.Query), "run:"))
		if err != nil {
			return queryRef{}, domain.ErrBadRequest("%v", err)
		}
		return ref, nil
	case q.SourceName != "" && q.QueryName != "":
		return queryRef{source: q.SourceName, view: q.QueryName}, nil
	case q.QueryName != "":
		ref, ok := a.queries[q.QueryName]
		if !ok {
			return queryRef{}, domain.ErrBadRequest("query %q not found", q.QueryName)
		}
		return ref, nil
	default:
		return queryRef{}, domain.ErrBadRequest("no query given")
	}
}

func wrapSource(name, query string) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS %s", query, ddl.QuoteIdentifier(name))
}

func resolveImport(fromURL, path string) (string, error) {
	if strings.HasPrefix(path, "file://") {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		dir := "."
		if fromURL != "" {
			dir = filepath.Dir(pathFromURL(fromURL))
		}
		path = filepath.Join(dir, filepath.FromSlash(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func pathFromURL(u string) string {
	return filepath.FromSlash(strings.TrimPrefix(u, "file://"))
}

func displayName(url string) string {
	if url == "" {
		return "model"
	}
	return filepath.Base(pathFromURL(url))
}
