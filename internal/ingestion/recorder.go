package ingestion

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/pkg/catalog"
)

// Recorder writes accepted uploads to the catalog.
type Recorder struct {
	store  catalog.Store
	logger *zap.Logger
}

// NewRecorder constructs a Recorder over store.
func NewRecorder(store catalog.Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record upserts the catalog record keyed by evt.Key. Recording a key that
// already exists is a no-op that reports created=false.
func (r *Recorder) Record(ctx context.Context, evt pipeline.UploadEvent) (bool, error) {
	if evt.Key == "" {
		return false, fmt.Errorf("record upload: %w", pipeline.ErrMissingKey)
	}

	created, err := r.store.Create(ctx, evt.Key)
	if err != nil {
		return false, fmt.Errorf("record %q: %w", evt.Key, errors.Join(pipeline.ErrStoreWrite, err))
	}

	if created {
		r.logger.Info("image recorded", zap.String("id", evt.Key), zap.String("bucket", evt.Bucket))
	} else {
		r.logger.Info("image already recorded", zap.String("id", evt.Key), zap.String("bucket", evt.Bucket))
	}
	return created, nil
}
