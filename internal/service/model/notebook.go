package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"model-publisher/internal/domain"
)

// Notebook statement separators. A separator line opens a new statement that
// runs until the next separator.
const (
	markdownSeparator = ">>>markdown"
	codeSeparator     = ">>>malloy"
)

// statement is one parsed notebook statement.
type statement struct {
	kind domain.NotebookCellType
	text string
}

// parseNotebook splits notebook text into statements. Text before the first
// separator is treated as markdown; empty statements are dropped.
func parseNotebook(content string) []statement {
	var (
		stmts   []statement
		current strings.Builder
		kind    = domain.NotebookCellMarkdown
	)

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			stmts = append(stmts, statement{kind: kind, text: text})
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case markdownSeparator:
			flush()
			kind = domain.NotebookCellMarkdown
			continue
		case codeSeparator:
			flush()
			kind = domain.NotebookCellCode
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	return stmts
}

// notebookFold is the state threaded through a notebook's statements in order.
type notebookFold struct {
	seen     map[string]bool // source names already reported by an earlier cell
	imported map[string]bool // import URLs already resolved
	artifact domain.CompiledArtifact
}

// compileNotebook compiles the statements of a notebook one after another.
// Each code statement extends the running artifact; the cell records only the
// sources that no earlier cell or import made visible.
func (m *Model) compileNotebook(ctx context.Context, abs, text string) error {
	url := fileURL(abs)
	stmts := parseNotebook(text)

	state := &notebookFold{seen: map[string]bool{}, imported: map[string]bool{}}
	cells := make([]domain.NotebookCell, 0, len(stmts))
	artifacts := make([]domain.CompiledArtifact, 0, len(stmts))

	for i, st := range stmts {
		if st.kind == domain.NotebookCellMarkdown {
			cells = append(cells, domain.NotebookCell{Type: st.kind, Text: st.text})
			artifacts = append(artifacts, nil)
			continue
		}
		cell, artifact, err := m.compileStatement(ctx, url, st, state)
		if err != nil {
			return compilationError(fmt.Sprintf("%s (cell %d)", m.path, i), err)
		}
		cells = append(cells, cell)
		artifacts = append(artifacts, artifact)
	}

	m.artifact = state.artifact
	m.cellArtifacts = artifacts
	m.compiled = m.newCompiledModel(state.artifact)
	m.compiled.Cells = cells
	return nil
}

// compileStatement is one step of the fold. Imports introduced by the
// statement are resolved concurrently and joined before the step's output
// is computed, so ordering across statements is preserved.
func (m *Model) compileStatement(ctx context.Context, url string, st statement, state *notebookFold) (domain.NotebookCell, domain.CompiledArtifact, error) {
	artifact, err := m.engine.Compile(ctx, domain.CompileRequest{
		URL:         url,
		Text:        st.text,
		Base:        state.artifact,
		Connections: m.connections,
	})
	if err != nil {
		return domain.NotebookCell{}, nil, err
	}

	var fresh []string
	for _, imp := range artifact.Imports() {
		if !state.imported[imp] {
			state.imported[imp] = true
			fresh = append(fresh, imp)
		}
	}
	importSources, err := m.resolveImports(ctx, fresh)
	if err != nil {
		return domain.NotebookCell{}, nil, err
	}

	cell := domain.NotebookCell{
		Type:      domain.NotebookCellCode,
		Text:      st.text,
		QueryName: newestQueryName(state.artifact, artifact),
	}
	candidates := append(importSources, artifact.Sources()...)
	for _, src := range candidates {
		if state.seen[src.Name] {
			continue
		}
		state.seen[src.Name] = true
		cell.NewSources = append(cell.NewSources, src)
	}

	state.artifact = artifact
	return cell, artifact, nil
}

// resolveImports compiles each imported file and returns their sources in
// import order.
func (m *Model) resolveImports(ctx context.Context, urls []string) ([]domain.SourceInfo, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	results := make([][]domain.SourceInfo, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, u := range urls {
		g.Go(func() error {
			data, err := os.ReadFile(pathFromURL(u))
			if err != nil {
				return fmt.Errorf("import %s: %w", u, err)
			}
			artifact, err := m.engine.Compile(gctx, domain.CompileRequest{
				URL:         u,
				Text:        string(data),
				Connections: m.connections,
			})
			if err != nil {
				return fmt.Errorf("import %s: %w", u, err)
			}
			results[i] = artifact.Sources()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.SourceInfo
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// newestQueryName returns the last query declared by next that prev did not have.
func newestQueryName(prev, next domain.CompiledArtifact) string {
	known := map[string]bool{}
	if prev != nil {
		for _, q := range prev.Queries() {
			known[q.Name] = true
		}
	}
	name := ""
	for _, q := range next.Queries() {
		if !known[q.Name] {
			name = q.Name
		}
	}
	return name
}
