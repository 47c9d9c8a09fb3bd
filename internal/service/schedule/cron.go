package schedule

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

var cronShorthands = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
	"@minutely": "* * * * *",
}

// NormalizeCron translates a named shorthand to its five-field expression.
// Any other input is returned unchanged.
func NormalizeCron(expr string) string {
	if five, ok := cronShorthands[expr]; ok {
		return five
	}
	return expr
}

// Driver is the single process-wide timer that fires every package's schedules.
type Driver struct {
	cron   *cron.Cron
	logger *slog.Logger
	mu     sync.Mutex
	active bool
}

// NewDriver creates a stopped driver.
func NewDriver(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{cron: cron.New(), logger: logger.With("component", "schedule-driver")}
}

// Start begins firing registered schedules.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return
	}
	d.cron.Start()
	d.active = true
	d.logger.Info("schedule driver started")
}

// Stop stops the timer and waits for running jobs until ctx is done.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	done := d.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	d.logger.Info("schedule driver stopped")
}

// Len returns the number of registered entries.
func (d *Driver) Len() int {
	return len(d.cron.Entries())
}

func (d *Driver) add(expr string, job func()) (cron.EntryID, error) {
	return d.cron.AddFunc(expr, job)
}

func (d *Driver) remove(id cron.EntryID) {
	d.cron.Remove(id)
}
