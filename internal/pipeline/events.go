// Package pipeline holds the message-level logic of the image ingestion
// pipeline: envelope parsing, upload validation and the shared data model.
package pipeline

// UploadEvent is the normalized form of one object-created notification record.
type UploadEvent struct {
	Bucket string
	Key    string
}

// Metadata attribute names accepted by the catalog.
const (
	AttributeCaption      = "Caption"
	AttributeDate         = "Date"
	AttributePhotographer = "Photographer"
)

// MetadataAttributes is the allow-list of attribute tags.
var MetadataAttributes = []string{AttributeCaption, AttributeDate, AttributePhotographer}

// IsMetadataAttribute reports whether name is an allowed attribute tag.
func IsMetadataAttribute(name string) bool {
	for _, attr := range MetadataAttributes {
		if attr == name {
			return true
		}
	}
	return false
}

// MetadataUpdate sets one attribute of an existing catalog record. Attribute is
// carried out of band as a message attribute, never in the body.
type MetadataUpdate struct {
	ID        string `json:"id"`
	Value     string `json:"value"`
	Attribute string `json:"-"`
}

// OutcomeStatus classifies a processed upload.
type OutcomeStatus string

const (
	StatusAccepted OutcomeStatus = "accepted"
	StatusRejected OutcomeStatus = "rejected"
)

// Outcome is what the notifier reports to the uploader.
type Outcome struct {
	Status OutcomeStatus
	ID     string
	Reason string
}

// Accepted builds an accepted outcome for id.
func Accepted(id string) Outcome {
	return Outcome{Status: StatusAccepted, ID: id}
}

// Rejected builds a rejected outcome for id with a human-readable reason.
func Rejected(id, reason string) Outcome {
	return Outcome{Status: StatusRejected, ID: id, Reason: reason}
}
