package engine

import (
	"fmt"
	"maps"
	"slices"

	"model-publisher/internal/domain"
)

// source is a compiled source: its base SQL, the connection it runs on, and
// the SQL of each of its views.
type source struct {
	info  domain.SourceInfo
	conn  domain.Connection
	sql   string
	views map[string]string
}

func (s *source) clone() *source {
	c := *s
	c.info.Views = slices.Clone(s.info.Views)
	c.info.Columns = slices.Clone(s.info.Columns)
	c.views = maps.Clone(s.views)
	return &c
}

func (s *source) addView(name, sql string, annotations []string) {
	if _, ok := s.views[name]; !ok {
		s.info.Views = append(s.info.Views, domain.ViewInfo{Name: name, Annotations: annotations})
	} else {
		for i := range s.info.Views {
			if s.info.Views[i].Name == name {
				s.info.Views[i].Annotations = annotations
			}
		}
	}
	s.views[name] = sql
}

// Artifact is the compiled form of model text. Extending an artifact copies
// it, so an artifact never changes after Compile returns.
type Artifact struct {
	url         string
	sources     map[string]*source
	sourceOrder []string
	queries     map[string]queryRef
	queryInfo   []domain.QueryInfo
	imports     []string
	final       *queryRef
}

func newArtifact(url string, base *Artifact) *Artifact {
	a := &Artifact{
		url:     url,
		sources: make(map[string]*source),
		queries: make(map[string]queryRef),
	}
	if base == nil {
		return a
	}
	for _, name := range base.sourceOrder {
		a.sources[name] = base.sources[name].clone()
	}
	a.sourceOrder = slices.Clone(base.sourceOrder)
	maps.Copy(a.queries, base.queries)
	a.queryInfo = slices.Clone(base.queryInfo)
	return a
}

func (a *Artifact) addSource(s *source) {
	if _, ok := a.sources[s.info.Name]; !ok {
		a.sourceOrder = append(a.sourceOrder, s.info.Name)
	}
	a.sources[s.info.Name] = s
}

func (a *Artifact) addQuery(name string, ref queryRef, annotations []string) {
	if _, ok := a.queries[name]; ok {
		a.queryInfo = slices.DeleteFunc(a.queryInfo, func(q domain.QueryInfo) bool { return q.Name == name })
	}
	a.queries[name] = ref
	a.queryInfo = append(a.queryInfo, domain.QueryInfo{
		Name:        name,
		SourceName:  ref.source,
		Limit:       ref.limit,
		Annotations: annotations,
	})
}

// merge makes the sources and queries of an imported artifact visible.
func (a *Artifact) merge(imported *Artifact) {
	for _, name := range imported.sourceOrder {
		a.addSource(imported.sources[name].clone())
	}
	for _, q := range imported.queryInfo {
		a.addQuery(q.Name, imported.queries[q.Name], q.Annotations)
	}
}

// check verifies that ref names a known source and view.
func (a *Artifact) check(ref queryRef) error {
	src, ok := a.sources[ref.source]
	if !ok {
		return fmt.Errorf("unknown source %q", ref.source)
	}
	if ref.view != "" {
		if _, ok := src.views[ref.view]; !ok {
			return fmt.Errorf("source %q has no view %q", ref.source, ref.view)
		}
	}
	return nil
}

// Sources implements domain.CompiledArtifact.
func (a *Artifact) Sources() []domain.SourceInfo {
	out := make([]domain.SourceInfo, 0, len(a.sourceOrder))
	for _, name := range a.sourceOrder {
		info := a.sources[name].info
		info.Views = slices.Clone(info.Views)
		info.Columns = slices.Clone(info.Columns)
		out = append(out, info)
	}
	return out
}

// Queries implements domain.CompiledArtifact.
func (a *Artifact) Queries() []domain.QueryInfo { return slices.Clone(a.queryInfo) }

// Imports implements domain.CompiledArtifact.
func (a *Artifact) Imports() []string { return slices.Clone(a.imports) }

// HasFinalQuery implements domain.CompiledArtifact.
func (a *Artifact) HasFinalQuery() bool { return a.final != nil }
