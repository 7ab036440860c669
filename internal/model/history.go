package model

// HistoryDeleteResponse represents the response when deleting one record
type HistoryDeleteResponse struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// HistoryClearResponse represents the response when clearing history
type HistoryClearResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}
