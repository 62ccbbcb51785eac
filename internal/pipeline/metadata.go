package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MetadataBatch is the result of decoding one metadata message. Entries that
// could not be decoded are reported in Invalid and do not affect the others.
type MetadataBatch struct {
	Updates []MetadataUpdate
	Invalid []error
}

// ParseMetadataUpdates decodes a metadata message body. The body is a single
// {id, value} object, an array of them, or a topic envelope wrapping either.
// The attribute tag comes from attrs, falling back to the envelope's
// MessageAttributes. The metadata subscription only delivers messages that
// carry the transport attribute, so the fallback only serves direct callers
// that pass raw topic envelopes.
func ParseMetadataUpdates(body []byte, attrs map[string]string) (MetadataBatch, error) {
	tag := attrs[AttrMetadataType]

	payload := bytes.TrimSpace(body)
	for depth := 0; len(payload) > 0 && payload[0] == '{'; depth++ {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return MetadataBatch{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if !isPresent(env.Message) {
			break
		}
		if depth+1 >= maxEnvelopeDepth {
			return MetadataBatch{}, fmt.Errorf("%w: more than %d nested envelopes", ErrMalformedEnvelope, maxEnvelopeDepth)
		}
		if tag == "" {
			tag = env.MessageAttributes[AttrMetadataType].Value
		}
		inner, err := innerMessage(env.Message)
		if err != nil {
			return MetadataBatch{}, err
		}
		payload = bytes.TrimSpace(inner)
	}

	var items []json.RawMessage
	switch {
	case len(payload) == 0:
		return MetadataBatch{}, fmt.Errorf("%w: empty payload", ErrMalformedEnvelope)
	case payload[0] == '[':
		if err := json.Unmarshal(payload, &items); err != nil {
			return MetadataBatch{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
	case payload[0] == '{':
		items = []json.RawMessage{payload}
	default:
		return MetadataBatch{}, fmt.Errorf("%w: payload is neither object nor array", ErrMalformedEnvelope)
	}

	var batch MetadataBatch
	for i, item := range items {
		var upd MetadataUpdate
		if err := json.Unmarshal(item, &upd); err != nil {
			batch.Invalid = append(batch.Invalid, fmt.Errorf("%w: item %d: %v", ErrInvalidMetadataMessage, i, err))
			continue
		}
		upd.Attribute = tag
		batch.Updates = append(batch.Updates, upd)
	}
	return batch, nil
}

// Validate checks the invariants of a metadata update.
func (u MetadataUpdate) Validate() error {
	if u.ID == "" || u.Value == "" {
		return fmt.Errorf("%w: missing id or value", ErrInvalidMetadataMessage)
	}
	if u.Attribute == "" {
		return fmt.Errorf("%w: missing %s attribute", ErrInvalidMetadataMessage, AttrMetadataType)
	}
	if !IsMetadataAttribute(u.Attribute) {
		return fmt.Errorf("%w: attribute %q not allowed", ErrInvalidMetadataMessage, u.Attribute)
	}
	return nil
}
