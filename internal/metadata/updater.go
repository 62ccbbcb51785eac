// Package metadata applies named attribute updates to catalog records.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
	"github.com/your-org/imageflow/pkg/catalog"
)

// Updater sets one attribute per update on an existing record. It never
// rewrites the whole record, so updates of different attributes commute.
type Updater struct {
	store  catalog.Store
	logger *zap.Logger
}

// NewUpdater constructs an Updater over store.
func NewUpdater(store catalog.Store, logger *zap.Logger) *Updater {
	return &Updater{store: store, logger: logger}
}

// Apply validates upd and sets upd.Attribute on the record upd.ID.
func (u *Updater) Apply(ctx context.Context, upd pipeline.MetadataUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}

	if err := u.store.SetAttribute(ctx, upd.ID, upd.Attribute, upd.Value); err != nil {
		return fmt.Errorf("set %s on %q: %w", upd.Attribute, upd.ID, errors.Join(pipeline.ErrStoreWrite, err))
	}

	u.logger.Info("metadata updated",
		zap.String("id", upd.ID),
		zap.String("attribute", upd.Attribute),
	)
	return nil
}

// HandleBatch applies every update of every message independently. Invalid
// updates are logged and skipped; a message fails only when one of its valid
// updates could not be stored, so just that message is redriven.
func (u *Updater) HandleBatch(ctx context.Context, msgs []router.Message) router.BatchResult {
	var res router.BatchResult
	for _, msg := range msgs {
		if err := u.processMessage(ctx, msg); err != nil {
			res.Fail(msg.ID, err)
		}
	}
	return res
}

func (u *Updater) processMessage(ctx context.Context, msg router.Message) error {
	batch, err := pipeline.ParseMetadataUpdates(msg.Body, msg.Attributes)
	if err != nil {
		u.logger.Error("discarding unparseable metadata message", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	for _, invalid := range batch.Invalid {
		u.logger.Error("skipping invalid metadata update", zap.String("message_id", msg.ID), zap.Error(invalid))
	}

	var errs []error
	for _, upd := range batch.Updates {
		err := u.Apply(ctx, upd)
		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrInvalidMetadataMessage):
			u.logger.Error("skipping invalid metadata update",
				zap.String("message_id", msg.ID),
				zap.String("id", upd.ID),
				zap.String("attribute", upd.Attribute),
				zap.Error(err),
			)
		default:
			u.logger.Error("metadata update failed",
				zap.String("message_id", msg.ID),
				zap.String("id", upd.ID),
				zap.String("attribute", upd.Attribute),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
