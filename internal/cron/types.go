// Package cron provides durable storage and time-driven triggering of
// scheduled jobs.
package cron

import (
	"time"

	"github.com/mentxia/mordomo/internal/types"
)

// Job is a persisted cron-triggered sequence of tool calls.
type Job struct {
	ID          string           `json:"id"`
	Expr        string           `json:"expr"` // 5-field cron expression
	Description string           `json:"description"`
	Commands    []types.ToolCall `json:"commands"`
	CreatedBy   string           `json:"createdBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	NextRun     time.Time        `json:"nextRun"`
	LastRun     *time.Time       `json:"lastRun,omitempty"`
	LastStatus  string           `json:"lastStatus,omitempty"` // "ok" or "error"
	LastError   string           `json:"lastError,omitempty"`
	Enabled     bool             `json:"enabled"`
	OneShot     bool             `json:"oneShot,omitempty"` // removed after its first fire
}

// clone returns a deep copy. Jobs cross the store boundary only as
// copies, so readers and the scheduler never share mutable state.
func (j *Job) clone() *Job {
	c := *j
	if j.LastRun != nil {
		lastRun := *j.LastRun
		c.LastRun = &lastRun
	}
	if j.Commands != nil {
		c.Commands = append([]types.ToolCall(nil), j.Commands...)
	}
	return &c
}

// StoreFile is the root structure of the jobs.json file.
type StoreFile struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

// Job status constants
const (
	StatusOK    = "ok"
	StatusError = "error"
)
