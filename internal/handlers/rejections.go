package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"
)

// RejectionCounter counts persisted rejection events.
type RejectionCounter interface {
	CountByIdentity(ctx context.Context, identity string) (int64, error)
}

// RejectionHandler serves the rejection audit log.
type RejectionHandler struct {
	counter RejectionCounter
	logger  *zap.Logger
}

// NewRejectionHandler creates a new rejection handler.
func NewRejectionHandler(counter RejectionCounter, logger *zap.Logger) *RejectionHandler {
	return &RejectionHandler{counter: counter, logger: logger}
}

// CountRejections returns the number of rejections recorded for an identity.
// Rejections reach the log asynchronously, so recent ones may be missing.
func (h *RejectionHandler) CountRejections(ctx context.Context, req *RejectionsRequest) (*RejectionsResponse, error) {
	count, err := h.counter.CountByIdentity(ctx, req.Identity)
	if err != nil {
		h.logger.Error("failed to count rejections", zap.String("identity", req.Identity), zap.Error(err))

		return nil, huma.Error503ServiceUnavailable("rejection log unavailable", err)
	}

	resp := &RejectionsResponse{}
	resp.Body.Identity = req.Identity
	resp.Body.Rejections = count

	return resp, nil
}
