package packages

import (
	"errors"
	"fmt"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/model"
)

// Name returns the package name.
func (p *Package) Name() string { return p.name }

// Path returns the package directory.
func (p *Package) Path() string { return p.path }

// Manifest returns the parsed manifest.
func (p *Package) Manifest() domain.PackageManifest { return p.manifest }

// Summary returns the list view of the package.
func (p *Package) Summary() domain.PackageSummary {
	return domain.PackageSummary{
		Resource:    fmt.Sprintf("/projects/%s/packages/%s", p.projectName, p.name),
		ProjectName: p.projectName,
		Name:        p.name,
		Description: p.manifest.Description,
	}
}

// ListModels returns every model in discovery order, including the ones that
// failed to load. When kinds are given only those kinds are returned.
func (p *Package) ListModels(kinds ...domain.ModelKind) []domain.ModelSummary {
	out := make([]domain.ModelSummary, 0, len(p.modelOrder))
	for _, path := range p.modelOrder {
		m := p.models[path]
		if len(kinds) > 0 && !containsKind(kinds, m.Kind()) {
			continue
		}
		out = append(out, m.Summary())
	}
	return out
}

func containsKind(kinds []domain.ModelKind, k domain.ModelKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// ListDatabases returns the embedded data files that could be described.
func (p *Package) ListDatabases() []domain.Database {
	return append([]domain.Database(nil), p.databases...)
}

// ListSchedules returns a snapshot of the package's schedules.
func (p *Package) ListSchedules() []domain.Schedule {
	return p.scheduler.List()
}

// ScheduleProblems returns the schedule annotations that were rejected.
func (p *Package) ScheduleProblems() []string {
	return p.scheduler.Problems()
}

// GetModel returns the model at path. A model that failed to compile is
// returned; its error surfaces from its accessors.
func (p *Package) GetModel(path string) (*model.Model, error) {
	m, ok := p.models[path]
	if !ok {
		return nil, domain.ErrModelNotFound("model %s not found in package %s", path, p.name)
	}
	return m, nil
}

// Connections returns the sanitized package-scope connection configs.
func (p *Package) Connections() []domain.ConnectionConfig {
	return append([]domain.ConnectionConfig(nil), p.connectionConfigs...)
}

// GetConnection returns a connection from the merged set.
func (p *Package) GetConnection(name string) (domain.Connection, error) {
	conn, ok := p.connections[name]
	if !ok {
		return nil, domain.ErrConnectionNotFound("connection %q not found in package %s", name, p.name)
	}
	return conn, nil
}

// Close stops the package's schedules and closes its package-scope
// connections. Inherited connections belong to the project.
func (p *Package) Close() error {
	p.scheduler.Close()
	if err := connection.CloseAll(p.ownConnections); err != nil {
		return errors.Join(fmt.Errorf("close package %s", p.name), err)
	}
	return nil
}
