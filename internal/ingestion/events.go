package ingestion

import "time"

// ImageRecordedEvent is emitted after an upload has been written to the catalog.
type ImageRecordedEvent struct {
	ID         string    `json:"id"`
	Bucket     string    `json:"bucket"`
	Created    bool      `json:"created"`
	RecordedAt time.Time `json:"recorded_at"`
}
