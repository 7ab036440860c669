package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WebSocket error codes
const (
	WSErrorBatchFailed   = "BATCH_FAILED"
	WSErrorBatchTimedOut = "BATCH_TIMED_OUT"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries one batch progress snapshot. Result records
// are reduced to ids to keep frames small.
type WSProgressMessage struct {
	Type      string    `json:"type"`
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Current   string    `json:"current,omitempty"`
	ResultIDs []int64   `json:"resultIds"`
	Errors    []string  `json:"errors"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RecordIDs extracts ids in order.
func RecordIDs(records []TranslationRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
