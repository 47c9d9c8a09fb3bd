// Package packages loads a package directory: its manifest, connections,
// embedded data files, models, and schedules.
package packages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/model"
	"model-publisher/internal/service/schedule"
	"model-publisher/internal/service/storage"
)

// Deps holds the collaborators used to load packages.
type Deps struct {
	Broker   *connection.Broker
	Engine   domain.SemanticEngine
	Driver   *schedule.Driver
	Executor domain.ScheduleExecutor
	Logger   *slog.Logger
	Meter    metric.Meter

	ModelMetrics         *model.Metrics
	DefaultRowLimit      int
	ModelLoadConcurrency int
	DescribeConcurrency  int
}

// Package is a loaded package. It is never mutated after Load; a reload
// builds a new Package.
type Package struct {
	projectName string
	name        string
	path        string
	manifest    domain.PackageManifest

	connections       map[string]domain.Connection
	ownConnections    map[string]domain.Connection
	connectionConfigs []domain.ConnectionConfig

	models     map[string]*model.Model
	modelOrder []string
	databases  []domain.Database
	scheduler  *schedule.Scheduler
}

// Load reads the package at packagePath. The manifest is the only hard
// requirement; models that fail to compile are kept with their error.
func Load(ctx context.Context, deps Deps, projectName, packageName, packagePath string, inherited map[string]domain.Connection) (*Package, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "package", "project", projectName, "package", packageName)
	start := time.Now()

	manifest, err := readManifest(packagePath, projectName, packageName)
	if err != nil {
		return nil, err
	}
	configs, err := ReadConnections(filepath.Join(packagePath, domain.ConnectionsFile))
	if err != nil {
		return nil, err
	}
	modelPaths, dataPaths, err := discoverFiles(packagePath)
	if err != nil {
		return nil, fmt.Errorf("scan package %s: %w", packageName, err)
	}

	broker := deps.Broker
	if broker == nil {
		broker = connection.NewBroker(connection.BrokerDeps{Logger: logger})
	}
	own, sanitized, err := broker.BuildPackageConnections(ctx, configs, packagePath)
	if err != nil {
		return nil, fmt.Errorf("package %s connections: %w", packageName, err)
	}

	p := &Package{
		projectName:       projectName,
		name:              packageName,
		path:              packagePath,
		manifest:          *manifest,
		connections:       connection.Merge(inherited, own),
		ownConnections:    own,
		connectionConfigs: sanitized,
		models:            make(map[string]*model.Model, len(modelPaths)),
		modelOrder:        modelPaths,
	}

	var (
		loaded []*model.Model
		g      errgroup.Group
	)
	g.Go(func() error {
		loaded = p.loadModels(ctx, deps, logger)
		return nil
	})
	g.Go(func() error {
		p.databases = p.describeDatabases(ctx, dataPaths, deps.DescribeConcurrency, logger)
		return nil
	})
	_ = g.Wait()

	scheduled := make([]schedule.Model, 0, len(loaded))
	for _, m := range loaded {
		p.models[m.Path()] = m
		scheduled = append(scheduled, m)
	}
	p.scheduler = schedule.Build(schedule.Deps{
		Driver:   deps.Driver,
		Executor: deps.Executor,
		Logger:   logger,
		Meter:    deps.Meter,
	}, projectName, packageName, scheduled)

	recordLoadDuration(ctx, deps.Meter, time.Since(start))
	logger.Info("package loaded",
		"models", len(loaded),
		"databases", len(p.databases),
		"schedules", len(p.scheduler.List()),
		"duration", time.Since(start),
	)
	return p, nil
}

// loadModels compiles every model concurrently and returns them in
// discovery order.
func (p *Package) loadModels(ctx context.Context, deps Deps, logger *slog.Logger) []*model.Model {
	limit := deps.ModelLoadConcurrency
	if limit <= 0 {
		limit = 8
	}
	mdeps := model.Deps{
		Engine:          deps.Engine,
		Logger:          logger,
		Metrics:         deps.ModelMetrics,
		DefaultRowLimit: deps.DefaultRowLimit,
	}

	out := make([]*model.Model, len(p.modelOrder))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, path := range p.modelOrder {
		g.Go(func() error {
			out[i] = model.Create(ctx, mdeps, p.name, p.path, path, p.connections)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// describeDatabases reads the schema and row count of every embedded data
// file through a throwaway duckdb. Files that cannot be described are skipped.
func (p *Package) describeDatabases(ctx context.Context, paths []string, limit int, logger *slog.Logger) []domain.Database {
	if len(paths) == 0 {
		return []domain.Database{}
	}
	conn, err := connection.OpenEphemeralDuckDB(ctx, p.path)
	if err != nil {
		logger.Warn("cannot describe embedded databases", "error", err)
		return []domain.Database{}
	}
	defer conn.Close() //nolint:errcheck

	out := make([]domain.Database, 0, len(paths))
	for _, d := range storage.DescribeFiles(ctx, conn, paths, limit) {
		if d.Err != nil {
			logger.Warn("skipping embedded database", "path", d.Path, "error", d.Err)
			continue
		}
		out = append(out, domain.Database{
			Resource: fmt.Sprintf("/packages/%s/databases/%s", p.name, d.Path),
			Path:     d.Path,
			Type:     domain.DatabaseTypeEmbedded,
			Info:     *d.Table,
		})
	}
	return out
}

func readManifest(packagePath, projectName, packageName string) (*domain.PackageManifest, error) {
	data, err := os.ReadFile(filepath.Join(packagePath, domain.PackageManifestFile)) //nolint:gosec // package path comes from configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrPackageNotFound("package %s not found in project %s", packageName, projectName)
		}
		return nil, fmt.Errorf("read manifest of %s: %w", packageName, err)
	}
	var manifest domain.PackageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, domain.ErrValidation("invalid %s in package %s: %v", domain.PackageManifestFile, packageName, err)
	}
	if manifest.Name == "" {
		manifest.Name = packageName
	}
	return &manifest, nil
}

// ReadConnections reads a connection config file. A missing file is an
// empty list.
func ReadConnections(path string) ([]domain.ConnectionConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var configs []domain.ConnectionConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, domain.ErrValidation("invalid %s: %v", path, err)
	}
	return configs, nil
}

// discoverFiles walks the package once and partitions its files into model
// paths and embedded data paths, relative to root. Hidden directories are skipped.
func discoverFiles(root string) (models, data []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if _, ok := domain.ModelKindForPath(rel); ok {
			models = append(models, rel)
			return nil
		}
		switch strings.ToLower(filepath.Ext(rel)) {
		case ".csv", ".parquet":
			data = append(data, rel)
		}
		return nil
	})
	return models, data, err
}

func recordLoadDuration(ctx context.Context, meter metric.Meter, d time.Duration) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("model-publisher/packages")
	}
	h, err := meter.Float64Histogram("publisher.package.load.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent loading a package"))
	if err != nil {
		return
	}
	h.Record(ctx, d.Seconds())
}
