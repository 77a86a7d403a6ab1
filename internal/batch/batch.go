// Package batch defines the domain types shared by the monitor, the event
// subscribers, and the provider client: job identity, status snapshots,
// status classification, completion payloads, and the provider contract.
package batch

import "time"

// JobID is the opaque handle the provider assigns to a submitted batch job.
// It is unique per job and immutable once assigned.
type JobID string

// ResultRef is an opaque reference to a provider-side file (batch input,
// output, or error file). Resolving it to bytes is a provider operation.
type ResultRef string

// Status is the raw, case-sensitive status string reported by the provider.
type Status string

// Status values published by the provider.
const (
	StatusValidating Status = "validating"
	StatusInProgress Status = "in_progress"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusCancelling Status = "cancelling"
	StatusExpired    Status = "expired"
)

// MonitoredJob is one in-flight job awaiting a terminal outcome. Its presence
// in the registry means exactly "no terminal state observed yet".
type MonitoredJob struct {
	ID          JobID
	SubmittedAt time.Time
	Description string
}

// RequestCounts reports provider-side progress over the sub-requests of a job.
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobError is one structured error the provider attached to a failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusSnapshot is the provider's read-only view of a job at poll time. It is
// consumed once per poll and either discarded or forwarded as event payload.
type StatusSnapshot struct {
	ID        JobID
	Status    Status
	OutputRef ResultRef
	ErrorRef  ResultRef
	Counts    RequestCounts
	Errors    []JobError
}

// Clock abstracts time.Now so tick-sensitive code can be tested.
type Clock interface {
	Now() time.Time
}
