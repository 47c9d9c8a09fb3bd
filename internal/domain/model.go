package domain

import "strings"

// ModelKind distinguishes single-query models from notebooks.
type ModelKind string

// Model kinds.
const (
	ModelKindModel    ModelKind = "model"
	ModelKindNotebook ModelKind = "notebook"
)

// File suffixes recognised as models.
const (
	ModelFileSuffix    = ".malloy"
	NotebookFileSuffix = ".malloynb"
)

// ModelKindForPath returns the kind implied by a file suffix.
func ModelKindForPath(path string) (ModelKind, bool) {
	switch {
	case strings.HasSuffix(path, NotebookFileSuffix):
		return ModelKindNotebook, true
	case strings.HasSuffix(path, ModelFileSuffix):
		return ModelKindModel, true
	default:
		return "", false
	}
}

// ViewInfo describes a named view declared on a source.
type ViewInfo struct {
	Name        string   `json:"name"`
	Annotations []string `json:"annotations,omitempty"`
}

// SourceInfo describes a source exposed by a compiled model.
type SourceInfo struct {
	Name        string     `json:"name"`
	Connection  string     `json:"connection,omitempty"`
	Columns     []Column   `json:"columns,omitempty"`
	Views       []ViewInfo `json:"views,omitempty"`
	Annotations []string   `json:"annotations,omitempty"`
}

// QueryInfo describes a named query declared by a model.
type QueryInfo struct {
	Name        string   `json:"name"`
	SourceName  string   `json:"sourceName,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Annotations []string `json:"annotations,omitempty"`
}

// NotebookCellType distinguishes markdown from runnable cells.
type NotebookCellType string

// Notebook cell types.
const (
	NotebookCellMarkdown NotebookCellType = "markdown"
	NotebookCellCode     NotebookCellType = "code"
)

// NotebookCell is one statement of a notebook, with the sources it newly introduces.
type NotebookCell struct {
	Type       NotebookCellType `json:"type"`
	Text       string           `json:"text"`
	QueryName  string           `json:"queryName,omitempty"`
	NewSources []SourceInfo     `json:"newSources,omitempty"`
}

// CompiledModel is the cached output of compiling one model file.
type CompiledModel struct {
	Resource    string         `json:"resource"`
	PackageName string         `json:"packageName"`
	Path        string         `json:"path"`
	Kind        ModelKind      `json:"type"`
	Sources     []SourceInfo   `json:"sources"`
	Queries     []QueryInfo    `json:"queries"`
	Cells       []NotebookCell `json:"notebookCells,omitempty"`
}

// ModelSummary is a list entry for a model, including its load failure if any.
type ModelSummary struct {
	Path  string    `json:"path"`
	Kind  ModelKind `json:"type"`
	Error string    `json:"error,omitempty"`
}

// QueryRequest addresses a query on a model: either raw Query text, or a
// QueryName optionally scoped by SourceName.
type QueryRequest struct {
	SourceName string
	QueryName  string
	Query      string
	RowLimit   int
}

// QueryResults is the result of executing a query on a model.
type QueryResults struct {
	Result     *SQLResult     `json:"result"`
	ModelInfo  *CompiledModel `json:"modelInfo"`
	DataStyles map[string]any `json:"dataStyles,omitempty"`
}
