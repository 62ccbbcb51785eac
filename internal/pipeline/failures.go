package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AttrFailedKeys lists, as a JSON object of key to reason, the records of a
// redriven message that failed. Records absent from it were handled.
const AttrFailedKeys = "failed_keys"

// KeyError ties a failure to the object key of the record that caused it.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string { return e.Err.Error() }

func (e *KeyError) Unwrap() error { return e.Err }

// FailedKeys collects every KeyError in err, including those joined with
// errors.Join, keyed by object key.
func FailedKeys(err error) map[string]string {
	keys := map[string]string{}
	var walk func(error)
	walk = func(e error) {
		var ke *KeyError
		switch x := e.(type) {
		case nil:
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		default:
			if errors.As(e, &ke) {
				keys[ke.Key] = ke.Err.Error()
			}
		}
	}
	walk(err)
	return keys
}

// EncodeFailedKeys renders keys as the AttrFailedKeys attribute value.
func EncodeFailedKeys(keys map[string]string) string {
	b, _ := json.Marshal(keys)
	return string(b)
}

// DecodeFailedKeys parses an AttrFailedKeys attribute value. An empty value
// yields an empty map.
func DecodeFailedKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	if raw == "" {
		return keys, nil
	}
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("decode %s: %w", AttrFailedKeys, err)
	}
	return keys, nil
}
