package project

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"model-publisher/internal/config"
	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/packages"
)

// Deps holds the dependencies of a Store.
type Deps struct {
	// Packages is passed to every package load. A nil Broker gets a default one.
	Packages packages.Deps
	Logger   *slog.Logger
	// Frozen rejects AddProject and DeleteProject.
	Frozen bool
}

// Store is the registry of loaded projects.
type Store struct {
	deps   packages.Deps
	logger *slog.Logger
	frozen bool

	mu       sync.RWMutex
	projects map[string]*Project
}

// NewStore creates an empty Store.
func NewStore(deps Deps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pdeps := deps.Packages
	if pdeps.Logger == nil {
		pdeps.Logger = logger
	}
	if pdeps.Broker == nil {
		pdeps.Broker = connection.NewBroker(connection.BrokerDeps{Logger: logger})
	}
	return &Store{
		deps:     pdeps,
		logger:   logger.With("component", "project-store"),
		frozen:   deps.Frozen,
		projects: make(map[string]*Project),
	}
}

// LoadAll loads every listed project. A project that cannot be built is
// logged and skipped; the number of failures is returned as an error.
func (s *Store) LoadAll(ctx context.Context, entries []config.ProjectEntry) error {
	failed := 0
	for _, e := range entries {
		p, err := build(ctx, s.deps, s.logger, e.Name, e.Path)
		if err != nil {
			failed++
			s.logger.Error("project failed to load", "project", e.Name, "path", e.Path, "error", err)
			continue
		}
		_ = s.swap(e.Name, p, swapUpsert)
		s.logger.Info("project loaded", "project", e.Name, "packages", len(p.packageOrder))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed to load", failed, len(entries))
	}
	return nil
}

// AddProject loads a new project at path.
func (s *Store) AddProject(ctx context.Context, name, path string) (*Project, error) {
	if s.frozen {
		return nil, domain.ErrFrozenConfig("cannot add project %s: configuration is frozen", name)
	}
	if name == "" {
		return nil, domain.ErrValidation("project name is required")
	}
	s.mu.RLock()
	_, exists := s.projects[name]
	s.mu.RUnlock()
	if exists {
		return nil, domain.ErrValidation("project %s already exists", name)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	p, err := build(ctx, s.deps, s.logger, name, abs)
	if err != nil {
		return nil, err
	}
	if err := s.swap(name, p, swapInsert); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject unloads a project, waiting for in-flight requests on it.
func (s *Store) DeleteProject(name string) error {
	if s.frozen {
		return domain.ErrFrozenConfig("cannot delete project %s: configuration is frozen", name)
	}
	s.mu.Lock()
	p, ok := s.projects[name]
	delete(s.projects, name)
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound("project %s not found", name)
	}
	return p.retire()
}

// Reload rebuilds a project from disk and swaps it in. Requests that started
// on the old graph finish on it; the old graph is closed afterwards. If the
// rebuild fails the old graph keeps serving.
//
// Reload must not be called from inside WithPackage on the same project.
func (s *Store) Reload(ctx context.Context, name string) (*Project, error) {
	s.mu.RLock()
	old, ok := s.projects[name]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound("project %s not found", name)
	}

	p, err := build(ctx, s.deps, s.logger, name, old.path)
	if err != nil {
		return nil, err
	}
	if err := s.swap(name, p, swapReplace); err != nil {
		return nil, err
	}
	s.logger.Info("project reloaded", "project", name, "packages", len(p.packageOrder))
	return p, nil
}

// swapMode states what must be registered under a name for swap to proceed.
type swapMode int

const (
	swapUpsert  swapMode = iota // anything
	swapInsert                  // nothing
	swapReplace                 // some project
)

// swap installs p and retires whatever it replaced. Membership is checked
// under the lock, so an add or delete that finished while p was being built
// wins; p is then retired instead of installed.
func (s *Store) swap(name string, p *Project, mode swapMode) error {
	s.mu.Lock()
	old, exists := s.projects[name]
	var err error
	switch {
	case mode == swapInsert && exists:
		err = domain.ErrValidation("project %s already exists", name)
	case mode == swapReplace && !exists:
		err = domain.ErrNotFound("project %s was deleted during reload", name)
	}
	if err != nil {
		s.mu.Unlock()
		if rerr := p.retire(); rerr != nil {
			s.logger.Warn("closing discarded project", "project", name, "error", rerr)
		}
		return err
	}
	s.projects[name] = p
	s.mu.Unlock()

	if old != nil {
		if err := old.retire(); err != nil {
			s.logger.Warn("closing replaced project", "project", name, "error", err)
		}
	}
	return nil
}

// Project returns the current graph of a project.
func (s *Store) Project(name string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[name]
	if !ok {
		return nil, domain.ErrNotFound("project %s not found", name)
	}
	return p, nil
}

// ListProjects returns the loaded project names, sorted.
func (s *Store) ListProjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithPackage runs fn against a package while holding a lease on its project
// graph, so a concurrent reload cannot close the package underneath fn.
func (s *Store) WithPackage(ctx context.Context, projectName, packageName string, fn func(context.Context, *packages.Package) error) error {
	s.mu.RLock()
	p, ok := s.projects[projectName]
	if !ok {
		s.mu.RUnlock()
		return domain.ErrNotFound("project %s not found", projectName)
	}
	// Taken under s.mu so a swap cannot retire p between lookup and lease.
	p.lease.RLock()
	s.mu.RUnlock()
	defer p.lease.RUnlock()

	pkg, err := p.Package(packageName)
	if err != nil {
		return err
	}
	return fn(ctx, pkg)
}

// Close unloads every project.
func (s *Store) Close() error {
	s.mu.Lock()
	projects := s.projects
	s.projects = make(map[string]*Project)
	s.mu.Unlock()

	var first error
	for name, p := range projects {
		if err := p.retire(); err != nil && first == nil {
			first = fmt.Errorf("project %s: %w", name, err)
		}
	}
	return first
}
