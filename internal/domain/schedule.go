package domain

import "time"

// ScheduleAction is what a schedule does when it fires.
type ScheduleAction string

// Schedule actions.
const (
	ScheduleActionMaterialize ScheduleAction = "materialize"
	ScheduleActionReport      ScheduleAction = "report"
)

// Run status values recorded on a schedule.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Schedule is the rendered, read-only view of one scheduled annotation.
type Schedule struct {
	Resource       string         `json:"resource"`
	Schedule       string         `json:"schedule"`
	NormalizedCron string         `json:"normalizedCron"`
	Action         ScheduleAction `json:"action"`
	Connection     string         `json:"connection"`
	LastRunTime    *time.Time     `json:"lastRunTime,omitempty"`
	LastRunStatus  string         `json:"lastRunStatus,omitempty"`
}
