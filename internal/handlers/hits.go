package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/audit"
	"github.com/serroba/ratelimiter/internal/messaging"
	"github.com/serroba/ratelimiter/internal/middleware"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"go.uber.org/zap"
)

// subjectPrefix keeps caller-supplied identities apart from middleware client keys.
const subjectPrefix = "subject:"

// HitLimiter records hits against scoped limits.
type HitLimiter interface {
	Has(scope ratelimit.Scope) bool
	Hit(ctx context.Context, identity string, scopes []ratelimit.Scope) (ratelimit.Decision, *ratelimit.LimitExceeded, error)
}

// HitHandler exposes the limiter to remote callers.
type HitHandler struct {
	limiter  HitLimiter
	observer middleware.HitObserver
	publish  messaging.Publish[audit.LimitExceededEvent]
	logger   *zap.Logger
}

// NewHitHandler creates a new hit handler. The observer and publish func may be nil.
func NewHitHandler(
	limiter HitLimiter,
	observer middleware.HitObserver,
	publish messaging.Publish[audit.LimitExceededEvent],
	logger *zap.Logger,
) *HitHandler {
	return &HitHandler{
		limiter:  limiter,
		observer: observer,
		publish:  publish,
		logger:   logger,
	}
}

// RecordHit records one hit for the identity and reports the decision.
// A rejected hit is answered with 429 and the same body as an allowed one.
func (h *HitHandler) RecordHit(ctx context.Context, req *HitRequest) (*HitResponse, error) {
	scope := ratelimit.Scope(req.Body.Scope)
	if !h.limiter.Has(scope) {
		return nil, huma.Error400BadRequest("unknown scope: " + req.Body.Scope)
	}

	start := time.Now()
	decision, exceeded, err := h.limiter.Hit(ctx, subjectPrefix+req.Body.Identity, []ratelimit.Scope{scope})

	if h.observer != nil {
		h.observer.ObserveHit(string(scope), decision, err, time.Since(start))
	}

	if err != nil {
		return nil, h.limiterError(err, req)
	}

	resp := &HitResponse{Status: http.StatusOK}
	resp.Headers.Limit = strconv.FormatInt(decision.Limit, 10)
	resp.Headers.Remaining = strconv.FormatInt(decision.Remaining(), 10)
	resp.Body.Allowed = decision.Allowed()
	resp.Body.Scope = string(scope)
	resp.Body.Count = decision.Count
	resp.Body.Limit = decision.Limit
	resp.Body.Remaining = decision.Remaining()
	resp.Body.WindowMs = decision.Window.Milliseconds()

	if exceeded != nil {
		resp.Status = http.StatusTooManyRequests
		h.publishExceeded(ctx, req.Body.Identity, exceeded)
	}

	return resp, nil
}

func (h *HitHandler) limiterError(err error, req *HitRequest) error {
	h.logger.Error("hit failed",
		zap.String("identity", req.Body.Identity),
		zap.String("scope", req.Body.Scope),
		zap.Error(err),
	)

	switch {
	case errors.Is(err, ratelimit.ErrIndeterminate):
		return huma.Error504GatewayTimeout("rate limit outcome unknown", err)
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		return huma.Error503ServiceUnavailable("rate limit store unavailable", err)
	case errors.Is(err, ratelimit.ErrEmptyIdentity):
		return huma.Error400BadRequest("identity must not be empty")
	default:
		return huma.Error500InternalServerError("failed to record hit")
	}
}

func (h *HitHandler) publishExceeded(ctx context.Context, identity string, exceeded *ratelimit.LimitExceeded) {
	if h.publish == nil {
		return
	}

	meta := middleware.RequestMetaFromContext(ctx)
	event := &audit.LimitExceededEvent{
		Identity:   identity,
		Scope:      string(exceeded.Scope),
		Count:      exceeded.Decision.Count,
		Limit:      exceeded.Decision.Limit,
		WindowMs:   exceeded.Decision.Window.Milliseconds(),
		ClientIP:   meta.ClientIP,
		UserAgent:  meta.UserAgent,
		OccurredAt: time.Now().UTC(),
	}

	if err := h.publish(ctx, event); err != nil {
		h.logger.Error("failed to publish limit exceeded event",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}
}
