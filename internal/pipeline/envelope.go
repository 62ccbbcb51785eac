package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Message attributes carried beside the body on the events topic.
const (
	AttrEventType    = "event_type"
	AttrMetadataType = "metadata_type"

	EventObjectCreated = "object_created"
	EventImageRecorded = "image_recorded"
)

// maxEnvelopeDepth bounds how many Message wrappers are peeled off a payload.
const maxEnvelopeDepth = 4

// envelope is the union of the wrapper shapes seen on the wire: a queue body or
// topic notification holding the inner payload as a JSON string in Message.
type envelope struct {
	Records           json.RawMessage             `json:"Records"`
	Message           json.RawMessage             `json:"Message"`
	MessageAttributes map[string]messageAttribute `json:"MessageAttributes"`
}

type messageAttribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

type notificationRecord struct {
	S3 *struct {
		Bucket *struct {
			Name *string `json:"name"`
		} `json:"bucket"`
		Object *struct {
			Key *string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseUploadEvents unwraps body down to the object-store notification and
// returns one UploadEvent per record. Any missing level fails the whole payload
// with ErrMalformedEnvelope.
func ParseUploadEvents(body []byte) ([]UploadEvent, error) {
	records, err := unwrapRecords(body, 0)
	if err != nil {
		return nil, err
	}

	var raw []notificationRecord
	if err := json.Unmarshal(records, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode Records: %v", ErrMalformedEnvelope, err)
	}

	events := make([]UploadEvent, 0, len(raw))
	for i, rec := range raw {
		if rec.S3 == nil {
			return nil, fmt.Errorf("%w: record %d: missing s3", ErrMalformedEnvelope, i)
		}
		if rec.S3.Bucket == nil || rec.S3.Bucket.Name == nil {
			return nil, fmt.Errorf("%w: record %d: missing s3.bucket.name", ErrMalformedEnvelope, i)
		}
		if rec.S3.Object == nil || rec.S3.Object.Key == nil {
			return nil, fmt.Errorf("%w: record %d: missing s3.object.key", ErrMalformedEnvelope, i)
		}
		key, err := DecodeObjectKey(*rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedEnvelope, i, err)
		}
		events = append(events, UploadEvent{Bucket: *rec.S3.Bucket.Name, Key: key})
	}
	return events, nil
}

func unwrapRecords(body []byte, depth int) (json.RawMessage, error) {
	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if isPresent(env.Records) {
		return env.Records, nil
	}
	if !isPresent(env.Message) {
		return nil, fmt.Errorf("%w: neither Records nor Message present", ErrMalformedEnvelope)
	}
	if depth+1 >= maxEnvelopeDepth {
		return nil, fmt.Errorf("%w: more than %d nested envelopes", ErrMalformedEnvelope, maxEnvelopeDepth)
	}
	inner, err := innerMessage(env.Message)
	if err != nil {
		return nil, err
	}
	return unwrapRecords(inner, depth+1)
}

func decodeEnvelope(body []byte) (envelope, error) {
	var env envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return env, fmt.Errorf("%w: empty payload", ErrMalformedEnvelope)
	}
	if trimmed[0] != '{' {
		return env, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

func innerMessage(raw json.RawMessage) ([]byte, error) {
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("%w: Message is not a string", ErrMalformedEnvelope)
	}
	return []byte(inner), nil
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// DecodeObjectKey reverses the notification encoding of an object key: '+'
// stands for a space and everything else is percent-encoded.
func DecodeObjectKey(key string) (string, error) {
	decoded, err := url.PathUnescape(strings.ReplaceAll(key, "+", " "))
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", key, err)
	}
	return decoded, nil
}
