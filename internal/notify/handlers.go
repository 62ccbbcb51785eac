package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/imageflow/internal/ingestion"
	"github.com/your-org/imageflow/internal/pipeline"
	"github.com/your-org/imageflow/internal/router"
)

// ConfirmationHandler sends an acceptance email for every image_recorded event.
type ConfirmationHandler struct {
	notifier *Notifier
	logger   *zap.Logger
}

// NewConfirmationHandler constructs a ConfirmationHandler.
func NewConfirmationHandler(n *Notifier, logger *zap.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{notifier: n, logger: logger}
}

func (h *ConfirmationHandler) HandleBatch(ctx context.Context, msgs []router.Message) router.BatchResult {
	var res router.BatchResult
	for _, msg := range msgs {
		var evt ingestion.ImageRecordedEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			h.logger.Error("discarding undecodable image recorded event", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		if evt.ID == "" {
			h.logger.Error("discarding image recorded event without id", zap.String("message_id", msg.ID))
			continue
		}
		if err := h.notifier.Notify(ctx, pipeline.Accepted(evt.ID)); err != nil {
			res.Fail(msg.ID, err)
		}
	}
	return res
}

// RejectionHandler consumes dead-lettered upload notifications and tells the
// uploader why each upload was turned down.
type RejectionHandler struct {
	notifier  *Notifier
	validator *pipeline.Validator
	logger    *zap.Logger
}

// NewRejectionHandler constructs a RejectionHandler. A nil validator uses the
// default image allow-list.
func NewRejectionHandler(n *Notifier, v *pipeline.Validator, logger *zap.Logger) *RejectionHandler {
	if v == nil {
		v = pipeline.NewValidator()
	}
	return &RejectionHandler{notifier: n, validator: v, logger: logger}
}

func (h *RejectionHandler) HandleBatch(ctx context.Context, msgs []router.Message) router.BatchResult {
	var res router.BatchResult
	for _, msg := range msgs {
		if err := h.processMessage(ctx, msg); err != nil {
			res.Fail(msg.ID, err)
		}
	}
	return res
}

func (h *RejectionHandler) processMessage(ctx context.Context, msg router.Message) error {
	events, err := pipeline.ParseUploadEvents(msg.Body)
	if err != nil {
		h.logger.Error("dead-lettered message is not an upload notification",
			zap.String("message_id", msg.ID),
			zap.String("failure_reason", msg.Attributes[router.AttrFailureReason]),
			zap.Error(err),
		)
		return nil
	}

	failed, err := pipeline.DecodeFailedKeys(msg.Attributes[pipeline.AttrFailedKeys])
	if err != nil {
		h.logger.Warn("ignoring unreadable failed keys", zap.String("message_id", msg.ID), zap.Error(err))
		failed = nil
	}

	var errs []error
	for _, evt := range events {
		outcome, ok := h.rejection(msg, evt, failed)
		if !ok {
			h.logger.Debug("record was processed; no rejection sent",
				zap.String("message_id", msg.ID),
				zap.String("key", evt.Key),
			)
			continue
		}
		if err := h.notifier.Notify(ctx, outcome); err != nil {
			h.logger.Error("rejection notification failed", zap.String("id", outcome.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rejection recovers the reason one record of a dead-lettered message was
// turned down: the validation verdict when it is rejected, otherwise the
// processing error stamped for its key. A valid record with no stamped error
// was handled alongside a failing sibling and gets no rejection.
func (h *RejectionHandler) rejection(msg router.Message, evt pipeline.UploadEvent, failed map[string]string) (pipeline.Outcome, bool) {
	if outcome, err := h.validator.Validate(evt); err != nil {
		return outcome, true
	}

	reason, ok := failed[evt.Key]
	if !ok {
		return pipeline.Outcome{}, false
	}
	if reason == "" {
		reason = fmt.Sprintf("processing failed after %d attempt(s)", msg.ReceiveCount)
	} else {
		reason = "processing failed: " + reason
	}
	return pipeline.Rejected(evt.Key, reason), true
}
