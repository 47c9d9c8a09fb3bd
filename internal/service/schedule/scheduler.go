// Package schedule derives periodic jobs from schedule annotations on model
// views and queries and keeps their run bookkeeping.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"model-publisher/internal/domain"
)

// Model is the part of a loaded model the scheduler reads.
type Model interface {
	Path() string
	CompiledModel() (*domain.CompiledModel, error)
}

// Deps holds the collaborators of a Scheduler.
type Deps struct {
	// Driver fires the jobs. A nil driver builds schedules without timers.
	Driver *Driver
	// Executor performs fired jobs. A nil executor only records bookkeeping.
	Executor domain.ScheduleExecutor
	Logger   *slog.Logger
	Meter    metric.Meter
}

// entry is one schedule and its mutable bookkeeping.
type entry struct {
	resource      string
	spec          Spec
	run           domain.ScheduledRun
	lastRunTime   *time.Time
	lastRunStatus string
}

// Scheduler owns the schedules of one package.
type Scheduler struct {
	driver   *Driver
	executor domain.ScheduleExecutor
	logger   *slog.Logger
	runs     metric.Int64Counter

	mu       sync.Mutex
	entries  []*entry
	ids      []cron.EntryID
	problems []string
}

// Build scans the views and named queries of every successfully compiled
// model for schedule annotations. A malformed annotation is recorded in
// Problems and does not affect the others.
func Build(deps Deps, projectName, packageName string, models []Model) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	meter := deps.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("model-publisher/schedule")
	}
	runs, err := meter.Int64Counter("publisher.schedule.runs", metric.WithDescription("Schedule firings by outcome"))
	if err != nil {
		runs, _ = noop.NewMeterProvider().Meter("").Int64Counter("")
	}

	s := &Scheduler{
		driver:   deps.Driver,
		executor: deps.Executor,
		logger:   logger.With("component", "scheduler", "package", packageName),
		runs:     runs,
	}

	for _, m := range models {
		cm, err := m.CompiledModel()
		if err != nil {
			continue
		}
		base := domain.ScheduledRun{ProjectName: projectName, PackageName: packageName, ModelPath: m.Path()}
		for _, src := range cm.Sources {
			for _, view := range src.Views {
				run := base
				run.SourceName, run.ViewName = src.Name, view.Name
				s.scan(fmt.Sprintf("%s > %s > %s", m.Path(), src.Name, view.Name), view.Annotations, run)
			}
		}
		for _, q := range cm.Queries {
			run := base
			run.QueryName = q.Name
			s.scan(fmt.Sprintf("%s > %s", m.Path(), q.Name), q.Annotations, run)
		}
	}
	return s
}

func (s *Scheduler) scan(resource string, annotations []string, run domain.ScheduledRun) {
	for _, text := range annotations {
		if !IsScheduleAnnotation(text) {
			continue
		}
		spec, err := ParseAnnotation(text)
		if err != nil {
			s.problem(resource, err)
			continue
		}
		run.Action, run.Connection, run.Argument = spec.Action, spec.Connection, spec.Argument
		e := &entry{resource: resource, spec: spec, run: run}

		if s.driver != nil {
			id, err := s.driver.add(spec.NormalizedCron, func() { s.fire(context.Background(), e) })
			if err != nil {
				s.problem(resource, err)
				continue
			}
			s.ids = append(s.ids, id)
		}
		s.entries = append(s.entries, e)
		s.logger.Info("scheduled", "resource", resource, "schedule", spec.Cron, "action", spec.Action)
	}
}

func (s *Scheduler) problem(resource string, err error) {
	s.problems = append(s.problems, fmt.Sprintf("%s: %v", resource, err))
	s.logger.Warn("invalid schedule annotation", "resource", resource, "error", err)
}

// fire runs one schedule. A schedule whose previous run is still recorded as
// running is skipped. The guard lives in this Scheduler's bookkeeping only,
// so it does not hold across a package reload.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	s.mu.Lock()
	if e.lastRunStatus == domain.RunStatusRunning {
		s.mu.Unlock()
		s.logger.Debug("previous run still running; skipping", "resource", e.resource)
		s.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
		return
	}
	now := time.Now().UTC()
	e.lastRunTime = &now
	e.lastRunStatus = domain.RunStatusRunning
	s.mu.Unlock()

	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, e.run)
	}

	s.mu.Lock()
	outcome := domain.RunStatusSuccess
	e.lastRunStatus = domain.RunStatusSuccess
	if err != nil {
		outcome = domain.RunStatusFailed
		e.lastRunStatus = domain.RunStatusFailed + ": " + err.Error()
	}
	s.mu.Unlock()

	s.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err != nil {
		s.logger.Warn("scheduled run failed", "resource", e.resource, "error", err)
	}
}

// List returns a snapshot of every schedule.
func (s *Scheduler) List() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		sch := domain.Schedule{
			Resource:       e.resource,
			Schedule:       e.spec.Cron,
			NormalizedCron: e.spec.NormalizedCron,
			Action:         e.spec.Action,
			Connection:     e.spec.Connection,
			LastRunStatus:  e.lastRunStatus,
		}
		if e.lastRunTime != nil {
			t := *e.lastRunTime
			sch.LastRunTime = &t
		}
		out = append(out, sch)
	}
	return out
}

// Problems returns the annotations that could not be scheduled.
func (s *Scheduler) Problems() []string {
	return append([]string(nil), s.problems...)
}

// Close removes this scheduler's jobs from the driver.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != nil {
		for _, id := range s.ids {
			s.driver.remove(id)
		}
	}
	s.ids = nil
}
