package pipeline

import (
	"fmt"
	"strings"
)

// DefaultImageExtensions are the file types accepted into the catalog.
var DefaultImageExtensions = []string{".jpeg", ".jpg"}

// Validator classifies upload events as accepted or rejected by file type.
type Validator struct {
	allowed map[string]struct{}
}

// NewValidator builds a Validator for the given extensions (leading dot,
// any case). With no extensions DefaultImageExtensions are used.
func NewValidator(extensions ...string) *Validator {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Validator{allowed: allowed}
}

// Validate returns the outcome for evt. A rejection also returns an error
// wrapping ErrUnsupportedFileType or ErrMissingKey so callers can let the
// redrive mechanism observe it.
func (v *Validator) Validate(evt UploadEvent) (Outcome, error) {
	if evt.Key == "" {
		return Rejected("", ErrMissingKey.Error()), fmt.Errorf("validate upload from %s: %w", evt.Bucket, ErrMissingKey)
	}

	ext := FileExtension(evt.Key)
	if _, ok := v.allowed[ext]; !ok {
		reason := fmt.Sprintf("Unsupported file type: %s", ext)
		return Rejected(evt.Key, reason), fmt.Errorf("validate %q: %w: %s", evt.Key, ErrUnsupportedFileType, ext)
	}
	return Accepted(evt.Key), nil
}

// FileExtension returns the lower-cased suffix of key starting at the last
// dot, or "" when key has no dot.
func FileExtension(key string) string {
	i := strings.LastIndex(key, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(key[i:])
}
