package health

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// Checker defines the interface for checking service health.
type Checker interface {
	Ping(ctx context.Context) error
}

// RedisChecker adapts a Redis client to Checker.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Handler handles health check operations.
type Handler struct {
	backend string
	store   Checker
}

// NewHandler creates a new health handler for the named limiter backend.
// A nil checker means the backend has no remote dependency.
func NewHandler(backend string, store Checker) *Handler {
	return &Handler{backend: backend, store: store}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		Store   string `json:"store"`
	}
}

// Check performs a health check of the limiter store.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = "ok"
	resp.Body.Backend = h.backend

	switch {
	case h.store == nil:
		resp.Body.Store = "local"
	case h.store.Ping(ctx) != nil:
		resp.Body.Store = "unhealthy"
		resp.Body.Status = "degraded"
	default:
		resp.Body.Store = "healthy"
	}

	return resp, nil
}

// RegisterRoutes registers health check routes. Health checks are never rate limited.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)
}
