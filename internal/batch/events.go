package batch

import "time"

// EventJobCompleted is the event name published on the bus whenever a
// monitored job reaches a terminal state, successful or not.
const EventJobCompleted = "job_completed"

// JobSucceeded is the payload for a job that completed with a result file.
type JobSucceeded struct {
	ID          JobID
	ResultRef   ResultRef
	SubmittedAt time.Time
	CompletedAt time.Time
}

// JobFailed is the payload for a job that reached a terminal state without
// completing: failed, cancelled, cancelling, or expired. ErrorRef and Errors
// carry whatever diagnostics the provider attached to the final snapshot.
type JobFailed struct {
	ID          JobID
	Status      Status
	Counts      RequestCounts
	Errors      []JobError
	ErrorRef    ResultRef
	SubmittedAt time.Time
	CompletedAt time.Time
}
