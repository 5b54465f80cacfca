package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a run or of a single step.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusWaiting Status = "WAITING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// ParseStatus maps a persisted status value to a canonical Status.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusQueued:
		return StatusQueued, nil
	case StatusWaiting:
		return StatusWaiting, nil
	case StatusRunning:
		return StatusRunning, nil
	case StatusSuccess:
		return StatusSuccess, nil
	case StatusFailure:
		return StatusFailure, nil
	default:
		return "", fmt.Errorf("unknown status %q", value)
	}
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// RuntimeInfo is the status, timing and log bundle attached to plans and steps.
type RuntimeInfo struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
	Log       string
}

// NewRuntimeInfo returns a queued RuntimeInfo with an empty log.
func NewRuntimeInfo() *RuntimeInfo {
	return &RuntimeInfo{Status: StatusQueued}
}

// AddLog appends a timestamped line. The log is append-only.
func (r *RuntimeInfo) AddLog(message string) {
	message = strings.TrimRight(message, "\n")
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), message)
	r.Log += line
}

// Start marks the holder as running from now on.
func (r *RuntimeInfo) Start() {
	now := time.Now().UTC()
	r.StartTime = &now
	r.EndTime = nil
	r.Status = StatusRunning
}

// Finish records the terminal status and the end time.
func (r *RuntimeInfo) Finish(status Status) {
	now := time.Now().UTC()
	r.EndTime = &now
	r.Status = status
}

// Clone returns a deep copy.
func (r *RuntimeInfo) Clone() *RuntimeInfo {
	if r == nil {
		return NewRuntimeInfo()
	}
	out := &RuntimeInfo{Status: r.Status, Log: r.Log}
	if r.StartTime != nil {
		t := *r.StartTime
		out.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	return out
}
