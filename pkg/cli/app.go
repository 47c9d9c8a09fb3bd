package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"model-publisher/internal/config"
	"model-publisher/internal/domain"
	"model-publisher/internal/engine"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/model"
	"model-publisher/internal/service/packages"
	"model-publisher/internal/service/project"
	"model-publisher/internal/service/schedule"
)

// app is the wired publisher runtime shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	broker *connection.Broker
	driver *schedule.Driver
	store  *project.Store
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// newApp wires the runtime without loading any project.
func newApp(cfg *config.Config, frozen bool) *app {
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	meter := otel.GetMeterProvider().Meter("model-publisher")

	a := &app{
		cfg:    cfg,
		logger: logger,
		broker: connection.NewBroker(connection.BrokerDeps{Logger: logger, CredentialDir: cfg.CredentialDir}),
		driver: schedule.NewDriver(logger),
	}
	a.store = project.NewStore(project.Deps{
		Packages: packages.Deps{
			Broker:               a.broker,
			Engine:               engine.New(logger),
			Driver:               a.driver,
			Executor:             &reportExecutor{app: a},
			Logger:               logger,
			Meter:                meter,
			ModelMetrics:         model.NewMetrics(meter),
			DefaultRowLimit:      cfg.DefaultRowLimit,
			ModelLoadConcurrency: cfg.ModelLoadConcurrency,
			DescribeConcurrency:  cfg.DescribeConcurrency,
		},
		Logger: logger,
		Frozen: frozen || cfg.FrozenConfig,
	})
	return a
}

// loadApp wires the runtime and loads every project in the publisher file.
// Projects that fail to load are logged and skipped.
func loadApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pf, err := config.LoadPublisherFile(cfg.PublisherConfigPath, cfg.ServerRoot)
	if err != nil {
		return nil, err
	}
	a := newApp(cfg, pf.FrozenConfig)
	if err := a.store.LoadAll(ctx, pf.Projects); err != nil {
		a.logger.Warn("some projects were not loaded", "error", err)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing projects", "error", err)
	}
}

// reportExecutor runs report schedules by executing their query and
// logging the row count. Materialization belongs to an external executor.
type reportExecutor struct {
	app *app
}

func (e *reportExecutor) Execute(ctx context.Context, run domain.ScheduledRun) error {
	if run.Action != domain.ScheduleActionReport {
		return domain.ErrNotImplemented("%s schedules need an external executor", run.Action)
	}
	req := domain.QueryRequest{QueryName: run.QueryName}
	if run.ViewName != "" {
		req = domain.QueryRequest{SourceName: run.SourceName, QueryName: run.ViewName}
	}
	return e.app.store.WithPackage(ctx, run.ProjectName, run.PackageName, func(ctx context.Context, pkg *packages.Package) error {
		m, err := pkg.GetModel(run.ModelPath)
		if err != nil {
			return err
		}
		res, err := m.QueryResults(ctx, req)
		if err != nil {
			return fmt.Errorf("report %s: %w", run.ModelPath, err)
		}
		e.app.logger.Info("report ready",
			"project", run.ProjectName, "package", run.PackageName, "model", run.ModelPath,
			"rows", len(res.Result.Rows), "connection", run.Connection)
		return nil
	})
}
