package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ratelimiter/internal/audit"
	"github.com/serroba/ratelimiter/internal/messaging"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"go.uber.org/zap"
)

// Rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
)

// PolicyLimiter records a hit against every limit of the given scopes.
type PolicyLimiter interface {
	Hit(ctx context.Context, identity string, scopes []ratelimit.Scope) (ratelimit.Decision, *ratelimit.LimitExceeded, error)
}

// HitObserver is notified of every hit outcome.
type HitObserver interface {
	ObserveHit(scope string, decision ratelimit.Decision, err error, elapsed time.Duration)
}

// PolicyRateLimiter returns a Huma middleware that applies policy-based rate limiting.
// It uses a ScopeResolver to determine which scopes apply to each request,
// then checks all applicable limits from the policy.
//
// Operations can opt out with ratelimit.EndpointConfig{Disabled: true} or
// pick their scope with ratelimit.EndpointConfig{Scope: ...} in their metadata.
// Rejections are published as audit events when publish is non-nil.
func PolicyRateLimiter(
	api huma.API,
	limiter PolicyLimiter,
	resolver ratelimit.ScopeResolver,
	observer HitObserver,
	publish messaging.Publish[audit.LimitExceededEvent],
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		path := getOperationPath(ctx)

		if cfg := ratelimit.GetEndpointConfig(ctx); cfg != nil && cfg.Disabled {
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", path), zap.String("method", ctx.Method()))
			next(ctx)

			return
		}

		key := clientKey(ctx)
		scopes := resolver.Resolve(ctx)

		start := time.Now()
		decision, exceeded, err := limiter.Hit(ctx.Context(), key, scopes)

		if observer != nil {
			observer.ObserveHit(metricScope(scopes, exceeded), decision, err, time.Since(start))
		}

		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", path), zap.Error(err))
			writeLimiterError(api, ctx, err)

			return
		}

		setLimitHeaders(ctx, decision)

		if exceeded != nil {
			handleRateLimitExceeded(api, ctx, exceeded, key, path, publish, logger)

			return
		}

		next(ctx)
	}
}

// getOperationPath extracts the path from the operation, if available.
func getOperationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

// metricScope labels a hit by the exceeded scope, or else the most specific one.
func metricScope(scopes []ratelimit.Scope, exceeded *ratelimit.LimitExceeded) string {
	if exceeded != nil {
		return string(exceeded.Scope)
	}

	if len(scopes) == 0 {
		return ""
	}

	return string(scopes[len(scopes)-1])
}

// handleRateLimitExceeded logs, audits and responds to a rate limit exceeded condition.
func handleRateLimitExceeded(
	api huma.API,
	ctx huma.Context,
	exceeded *ratelimit.LimitExceeded,
	key string,
	path string,
	publish messaging.Publish[audit.LimitExceededEvent],
	logger *zap.Logger,
) {
	d := exceeded.Decision

	logger.Warn("rate limit exceeded",
		zap.String("path", path),
		zap.String("method", ctx.Method()),
		zap.String("scope", string(exceeded.Scope)),
		zap.Int64("count", d.Count),
		zap.Int64("max", d.Limit),
		zap.Duration("window", d.Window),
		zap.String("client_ip", clientIP(ctx)),
	)

	if publish != nil {
		event := &audit.LimitExceededEvent{
			Identity:   key,
			Scope:      string(exceeded.Scope),
			Count:      d.Count,
			Limit:      d.Limit,
			WindowMs:   d.Window.Milliseconds(),
			Method:     ctx.Method(),
			Path:       path,
			ClientIP:   clientIP(ctx),
			UserAgent:  ctx.Header("User-Agent"),
			OccurredAt: time.Now().UTC(),
		}

		if err := publish(ctx.Context(), event); err != nil {
			logger.Error("failed to publish limit exceeded event", zap.Error(err))
		}
	}

	msg := fmt.Sprintf("rate limit exceeded: %s scope, %d/%d requests in %s",
		exceeded.Scope, d.Count, d.Limit, d.Window)
	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
}

// writeLimiterError responds to a hit that produced no decision.
func writeLimiterError(api huma.API, ctx huma.Context, err error) {
	switch {
	case errors.Is(err, ratelimit.ErrIndeterminate):
		_ = huma.WriteErr(api, ctx, http.StatusGatewayTimeout, "rate limit outcome unknown", err)
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, "rate limit store unavailable", err)
	default:
		_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)
	}
}

func setLimitHeaders(ctx huma.Context, decision ratelimit.Decision) {
	if decision.Limit == 0 {
		return
	}

	ctx.SetHeader(HeaderLimit, strconv.FormatInt(decision.Limit, 10))
	ctx.SetHeader(HeaderRemaining, strconv.FormatInt(decision.Remaining(), 10))
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	// Check X-Forwarded-For header (may contain multiple IPs)
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
