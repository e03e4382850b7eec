package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusRetrying,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Type identifies what kind of work a job performs. One handler is registered
// per type; the phase chain is scan -> enrich -> publish -> sync.
type Type string

const (
	TypeScan    Type = "scan"
	TypeEnrich  Type = "enrich"
	TypePublish Type = "publish"
	TypeSync    Type = "sync"
)

var allTypes = []Type{TypeScan, TypeEnrich, TypePublish, TypeSync}

// Priority bounds. Higher numbers are claimed first.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
	// ManualPriority is used for user-triggered jobs so they jump ahead of
	// scheduled background work.
	ManualPriority = 8
)

// Job represents a queue job persisted in SQLite. Jobs are owned exclusively
// by the Store; workers mutate them only through Claim, Complete, and Fail.
type Job struct {
	ID            int64
	Type          Type
	Priority      int
	Payload       string
	Status        Status
	RetryCount    int
	MaxRetries    int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	NextRetryAt   *time.Time
	LastHeartbeat *time.Time
}

// RetryPolicy carries retry bookkeeping supplied at enqueue time. Callers
// re-enqueueing an interrupted job pass its previous counts; the queue honors
// them rather than resetting to zero.
type RetryPolicy struct {
	RetryCount int
	MaxRetries int
}

// Stats aggregates queue state for observability. OldestPendingAge is nil
// when nothing is pending.
type Stats struct {
	Pending          int
	Processing       int
	Completed        int
	Failed           int
	Retrying         int
	OldestPendingAge *time.Duration
}

// Total returns the number of jobs across all states.
func (s Stats) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed + s.Retrying
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// AllTypes returns the ordered list of known job types.
func AllTypes() []Type {
	cp := make([]Type, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseType converts a string into a known job Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTypes {
		if t == normalized {
			return t, true
		}
	}
	return "", false
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ClampPriority forces a priority into the valid range, defaulting out-of-band
// zero values.
func ClampPriority(priority int) int {
	if priority == 0 {
		return DefaultPriority
	}
	if priority < MinPriority {
		return MinPriority
	}
	if priority > MaxPriority {
		return MaxPriority
	}
	return priority
}
