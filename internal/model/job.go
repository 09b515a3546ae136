package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	// StatusPaused is reserved and never set by the engine.
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Claimable reports whether a worker may take ownership of a job in state s.
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusQueued
}

// ErrorKind classifies why a job attempt failed.
type ErrorKind string

const (
	KindTimeout             ErrorKind = "timeout"
	KindNetwork             ErrorKind = "network"
	KindRateLimit           ErrorKind = "rate_limit"
	KindProcessKilled       ErrorKind = "process_killed"
	KindOrphaned            ErrorKind = "orphaned"
	KindValidation          ErrorKind = "validation"
	KindAuth                ErrorKind = "auth"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindStateConflict       ErrorKind = "state_conflict"
	KindUnknown             ErrorKind = "unknown"
)

// Job is a single unit of background work. The payload is opaque to the
// queue and must carry everything the handler needs, since retries and
// orphan recovery re-execute from the row alone.
type Job struct {
	ID           string          `json:"id"`
	JobType      string          `json:"jobType"`
	Status       Status          `json:"status"`
	TenantID     string          `json:"tenantId"`
	InputPayload json.RawMessage `json:"inputPayload"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorKind    ErrorKind       `json:"errorKind,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Retries      int             `json:"retries"`
	MaxRetries   int             `json:"maxRetries"`
	Recoveries   int             `json:"recoveries"`
	Priority     int             `json:"priority"`
	ParentJobID  string          `json:"parentJobId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	AvailableAt  time.Time       `json:"availableAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	HeartbeatAt  *time.Time      `json:"heartbeatAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
}

// StatusView is the lightweight shape served by GET /jobs/{id}/status.
type StatusView struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Retries   int       `json:"retries"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
}

// StatusView projects the fields a status poller needs.
func (j *Job) StatusView() StatusView {
	return StatusView{ID: j.ID, Status: j.Status, Retries: j.Retries, ErrorKind: j.ErrorKind}
}
