package model

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"model-publisher/internal/domain"
)

// QueryResults runs a query against the model. The request must name exactly
// one of Query (raw query text) and QueryName; SourceName scopes QueryName
// to a view of that source.
func (m *Model) QueryResults(ctx context.Context, req domain.QueryRequest) (*domain.QueryResults, error) {
	if m.err != nil {
		return nil, m.err
	}
	if (req.Query == "") == (req.QueryName == "") {
		return nil, domain.ErrBadRequest("exactly one of query and queryName must be provided")
	}
	if req.SourceName != "" && req.QueryName == "" {
		return nil, domain.ErrBadRequest("sourceName requires queryName")
	}
	if m.artifact == nil {
		return nil, domain.ErrBadRequest("model %s has no runnable statements", m.path)
	}

	res, err := m.engine.Run(ctx, m.artifact, domain.EngineQuery{
		SourceName: req.SourceName,
		QueryName:  req.QueryName,
		Query:      req.Query,
		RowLimit:        m.rowLimit(req),
		DefaultRowLimit: m.defaultRowLimit,
	})
	if err != nil {
		return nil, err
	}
	return &domain.QueryResults{Result: res.Result, ModelInfo: m.compiled, DataStyles: m.dataStyles}, nil
}

// rowLimit picks the request limit, then the named query's declared limit.
// Zero leaves the choice to the engine, which knows the limits declared in
// raw query text and falls back to the default.
func (m *Model) rowLimit(req domain.QueryRequest) int {
	if req.RowLimit > 0 {
		return req.RowLimit
	}
	if req.QueryName != "" && req.SourceName == "" {
		for _, q := range m.compiled.Queries {
			if q.Name == req.QueryName && q.Limit > 0 {
				return q.Limit
			}
		}
	}
	return 0
}

// NotebookCellResult runs the query that ends the notebook cell at index.
func (m *Model) NotebookCellResult(ctx context.Context, index int) (*domain.QueryResults, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.kind != domain.ModelKindNotebook {
		return nil, domain.ErrBadRequest("%s is not a notebook", m.path)
	}
	if index < 0 || index >= len(m.cellArtifacts) {
		return nil, domain.ErrBadRequest("cell index %d out of range [0, %d)", index, len(m.cellArtifacts))
	}
	artifact := m.cellArtifacts[index]
	if artifact == nil {
		return nil, domain.ErrBadRequest("cell %d is markdown", index)
	}
	if !artifact.HasFinalQuery() {
		return nil, domain.ErrBadRequest("cell %d does not end in a query", index)
	}

	res, err := m.engine.Run(ctx, artifact, domain.EngineQuery{Final: true, DefaultRowLimit: m.defaultRowLimit})
	if err != nil {
		return nil, err
	}
	return &domain.QueryResults{Result: res.Result, ModelInfo: m.compiled, DataStyles: m.dataStyles}, nil
}

// loadDataStyles reads the optional <model>.styles.json rendering hints that
// sit next to a model file.
func loadDataStyles(abs string, logger *slog.Logger) map[string]any {
	base := strings.TrimSuffix(strings.TrimSuffix(abs, domain.NotebookFileSuffix), domain.ModelFileSuffix)
	data, err := os.ReadFile(base + ".styles.json") //nolint:gosec // sibling of a validated model path
	if err != nil {
		return nil
	}
	var styles map[string]any
	if err := json.Unmarshal(data, &styles); err != nil {
		logger.Warn("ignoring invalid data styles", "error", err)
		return nil
	}
	return styles
}
