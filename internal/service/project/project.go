// Package project owns the loaded projects and swaps a project's package
// graph atomically on reload.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/packages"
)

// packageLoadConcurrency bounds how many packages of one project load at once.
const packageLoadConcurrency = 4

// Project is one loaded project graph: its project-scope connections and
// every package found under its root. A Project is never mutated; a reload
// builds a new one.
type Project struct {
	name string
	path string

	connections       map[string]domain.Connection
	connectionConfigs []domain.ConnectionConfig
	packages          map[string]*packages.Package
	packageOrder      []string
	problems          map[string]string

	// lease is held for reading by every request using this graph and for
	// writing while the graph is closed.
	lease sync.RWMutex
}

func build(ctx context.Context, deps packages.Deps, logger *slog.Logger, name, path string) (*Project, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, domain.ErrNotFound("project %s: directory %s not found", name, path)
	}

	configs, err := packages.ReadConnections(filepath.Join(path, domain.ConnectionsFile))
	if err != nil {
		return nil, err
	}
	conns, sanitized, err := deps.Broker.BuildProjectConnections(ctx, configs)
	if err != nil {
		return nil, fmt.Errorf("project %s connections: %w", name, err)
	}

	dirs, err := packageDirs(path)
	if err != nil {
		_ = connection.CloseAll(conns)
		return nil, fmt.Errorf("scan project %s: %w", name, err)
	}

	p := &Project{
		name:              name,
		path:              path,
		connections:       conns,
		connectionConfigs: sanitized,
		packages:          make(map[string]*packages.Package, len(dirs)),
		problems:          make(map[string]string),
	}

	loaded := make([]*packages.Package, len(dirs))
	failures := make([]error, len(dirs))
	g := new(errgroup.Group)
	g.SetLimit(packageLoadConcurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			loaded[i], failures[i] = packages.Load(ctx, deps, name, dir, filepath.Join(path, dir), conns)
			return nil
		})
	}
	_ = g.Wait()

	for i, dir := range dirs {
		if failures[i] != nil {
			p.problems[dir] = failures[i].Error()
			logger.Warn("package failed to load", "project", name, "package", dir, "error", failures[i])
			continue
		}
		p.packages[dir] = loaded[i]
		p.packageOrder = append(p.packageOrder, dir)
	}
	return p, nil
}

// packageDirs returns the immediate subdirectories of root that hold a
// package manifest, sorted by name.
func packageDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), domain.PackageManifestFile)); err == nil {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

// Path returns the project root directory.
func (p *Project) Path() string { return p.path }

// Connections returns the sanitized project-scope connection configs.
func (p *Project) Connections() []domain.ConnectionConfig {
	return append([]domain.ConnectionConfig(nil), p.connectionConfigs...)
}

// GetConnection returns a live project-scope connection.
func (p *Project) GetConnection(name string) (domain.Connection, error) {
	if c, ok := p.connections[name]; ok {
		return c, nil
	}
	return nil, domain.ErrConnectionNotFound("connection %q not found in project %s", name, p.name)
}

// ListPackages returns every loaded package in name order.
func (p *Project) ListPackages() []domain.PackageSummary {
	out := make([]domain.PackageSummary, 0, len(p.packageOrder))
	for _, name := range p.packageOrder {
		out = append(out, p.packages[name].Summary())
	}
	return out
}

// Package returns a loaded package.
func (p *Project) Package(name string) (*packages.Package, error) {
	if pkg, ok := p.packages[name]; ok {
		return pkg, nil
	}
	if msg, ok := p.problems[name]; ok {
		return nil, domain.ErrPackageNotFound("package %s in project %s failed to load: %s", name, p.name, msg)
	}
	return nil, domain.ErrPackageNotFound("package %s not found in project %s", name, p.name)
}

// Problems maps package directories that failed to load to their error.
func (p *Project) Problems() map[string]string {
	out := make(map[string]string, len(p.problems))
	for k, v := range p.problems {
		out[k] = v
	}
	return out
}

// retire waits for in-flight leases and closes the graph.
func (p *Project) retire() error {
	p.lease.Lock()
	defer p.lease.Unlock()

	var errs []error
	for _, name := range p.packageOrder {
		if err := p.packages[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("package %s: %w", name, err))
		}
	}
	if err := connection.CloseAll(p.connections); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
