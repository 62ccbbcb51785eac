package pipeline

import "errors"

// Error taxonomy shared by every stage of the pipeline. Stages wrap these with
// context; callers classify failures with errors.Is.
var (
	// ErrMalformedEnvelope means the payload does not have the expected nested shape.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUnsupportedFileType is a validation rejection of an upload.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrMissingKey is a validation rejection of an upload without an object key.
	ErrMissingKey = errors.New("missing object key")
	// ErrInvalidMetadataMessage means a metadata update lacks id, value or a valid attribute tag.
	ErrInvalidMetadataMessage = errors.New("invalid metadata message")
	// ErrStoreWrite marks a failed catalog store operation.
	ErrStoreWrite = errors.New("catalog store write failed")
	// ErrTransport marks a failed publish or email dispatch.
	ErrTransport = errors.New("transport failure")
)

// IsRejection reports whether err is a validation rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnsupportedFileType) || errors.Is(err, ErrMissingKey)
}
