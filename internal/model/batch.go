package model

// BatchProgress is a point-in-time view of a running batch.
type BatchProgress struct {
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Current   string              `json:"current"`
	Results   []TranslationRecord `json:"results"`
	Errors    []string            `json:"errors"`
}

// BatchReport is the aggregate returned once a batch stops.
type BatchReport struct {
	Total     int                 `json:"total"`
	Completed int                 `json:"completed"`
	Canceled  bool                `json:"canceled"`
	TimedOut  bool                `json:"timedOut,omitempty"`
	Results   []TranslationRecord `json:"results"`
	Errors    []string            `json:"errors"`
}

// BatchSummary is a BatchReport reduced to record ids.
type BatchSummary struct {
	Total     int      `json:"total"`
	Completed int      `json:"completed"`
	Canceled  bool     `json:"canceled"`
	TimedOut  bool     `json:"timedOut,omitempty"`
	ResultIDs []int64  `json:"resultIds"`
	Errors    []string `json:"errors"`
}

// Summary drops the image payloads from the report.
func (r *BatchReport) Summary() BatchSummary {
	return BatchSummary{
		Total:     r.Total,
		Completed: r.Completed,
		Canceled:  r.Canceled,
		TimedOut:  r.TimedOut,
		ResultIDs: RecordIDs(r.Results),
		Errors:    r.Errors,
	}
}
