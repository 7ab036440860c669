package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// Job types
const (
	JobTypeBatch = "batch"
)

// Job is the Redis snapshot of an asynchronous batch.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Current     string     `json:"current,omitempty"`
	ResultIDs   []int64    `json:"resultIds"`
	Errors      []string   `json:"errors"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// BatchJobPayload contains the data for an async batch task
type BatchJobPayload struct {
	JobID string      `json:"jobId"`
	Items []BatchItem `json:"items"`
}

// AsyncBatchResponse represents the response when queueing a batch
type AsyncBatchResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse represents the status of an async batch
type JobStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Current     string     `json:"current,omitempty"`
	Errors      []string   `json:"errors"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// JobCancelResponse represents the response when canceling a batch
type JobCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// JobResultResponse is the outcome of a finished async batch. Records
// deleted from history since the batch ran are omitted.
type JobResultResponse struct {
	JobID     string              `json:"jobId"`
	Status    JobStatus           `json:"status"`
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Canceled  bool                `json:"canceled"`
	Results   []TranslationRecord `json:"results"`
	Errors    []string            `json:"errors"`
}
