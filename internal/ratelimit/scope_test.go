package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestContext(method string, op *huma.Operation) huma.Context {
	return humatest.NewContext(op, httptest.NewRequest(method, "/v1/hits", nil), httptest.NewRecorder())
}

func withMetadata(cfg ratelimit.EndpointConfig) *huma.Operation {
	return &huma.Operation{Metadata: map[string]any{ratelimit.MetadataKey: cfg}}
}

func TestMethodScopeResolver_Resolve(t *testing.T) {
	read := []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeRead}
	write := []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeWrite}

	tests := map[string][]ratelimit.Scope{
		http.MethodGet:     read,
		http.MethodHead:    read,
		http.MethodOptions: read,
		http.MethodPost:    write,
		http.MethodPut:     write,
		http.MethodPatch:   write,
		http.MethodDelete:  write,
	}

	resolver := ratelimit.NewMethodScopeResolver()

	for method, want := range tests {
		t.Run(method, func(t *testing.T) {
			assert.Equal(t, want, resolver.Resolve(requestContext(method, nil)))
		})
	}
}

func TestOperationScopeResolver_Resolve(t *testing.T) {
	resolver := ratelimit.NewOperationScopeResolver()

	t.Run("falls back to the method without an operation", func(t *testing.T) {
		scopes := resolver.Resolve(requestContext(http.MethodGet, nil))

		assert.Equal(t, []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeRead}, scopes)
	})

	t.Run("falls back to the method when metadata has no scope", func(t *testing.T) {
		scopes := resolver.Resolve(requestContext(http.MethodPost, withMetadata(ratelimit.EndpointConfig{})))

		assert.Equal(t, []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeWrite}, scopes)
	})

	t.Run("ignores metadata of another type", func(t *testing.T) {
		op := &huma.Operation{Metadata: map[string]any{ratelimit.MetadataKey: "write"}}

		scopes := resolver.Resolve(requestContext(http.MethodGet, op))

		assert.Equal(t, []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeRead}, scopes)
	})

	t.Run("uses the metadata scope alongside global", func(t *testing.T) {
		op := withMetadata(ratelimit.EndpointConfig{Scope: ratelimit.ScopeWrite})

		scopes := resolver.Resolve(requestContext(http.MethodGet, op))

		assert.Equal(t, []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeWrite}, scopes)
	})

	t.Run("accepts custom scopes", func(t *testing.T) {
		op := withMetadata(ratelimit.EndpointConfig{Scope: "billing"})

		scopes := resolver.Resolve(requestContext(http.MethodPost, op))

		assert.Equal(t, []ratelimit.Scope{ratelimit.ScopeGlobal, "billing"}, scopes)
	})
}

func TestGetEndpointConfig(t *testing.T) {
	t.Run("returns nil without metadata", func(t *testing.T) {
		assert.Nil(t, ratelimit.GetEndpointConfig(requestContext(http.MethodGet, &huma.Operation{})))
	})

	t.Run("returns the attached config", func(t *testing.T) {
		op := withMetadata(ratelimit.EndpointConfig{Disabled: true})

		cfg := ratelimit.GetEndpointConfig(requestContext(http.MethodGet, op))

		require.NotNil(t, cfg)
		assert.True(t, cfg.Disabled)
		assert.Empty(t, cfg.Scope)
	})
}
