package models

// DataKey represents a key for storing answers collected by a flow.
type DataKey string

// Data key constants for the scheduling flow.
const (
	DataKeyDate      DataKey = "date"
	DataKeyStartTime DataKey = "start_time"
	DataKeyEndTime   DataKey = "end_time"
)
