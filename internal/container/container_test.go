package container_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/do"
	"github.com/serroba/ratelimiter/internal/audit"
	"github.com/serroba/ratelimiter/internal/container"
	"github.com/serroba/ratelimiter/internal/metrics"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions() *container.Options {
	return &container.Options{
		LogFormat:     "console",
		StoreBackend:  container.BackendMemory,
		KeyPrefix:     "test",
		ConsumerGroup: "test-audit",
		GlobalWindow:  "1m",
		GlobalMax:     100,
		ReadWindow:    "1m",
		ReadMax:       60,
		WriteWindow:   "1m",
		WriteMax:      20,
	}
}

func newInjector(t *testing.T, opts *container.Options) *do.Injector {
	t.Helper()

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.RateLimitPackage(injector)
	container.MetricsPackage(injector)
	container.PublisherGroupPackage(injector)
	container.HTTPPackage(injector)

	t.Cleanup(func() { _ = injector.Shutdown() })

	return injector
}

func newRouter(t *testing.T, injector *do.Injector) *chi.Mux {
	t.Helper()

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)

	return router
}

func postHit(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/hits", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestOptions_Policy(t *testing.T) {
	t.Run("builds one limit per scope", func(t *testing.T) {
		policy, err := defaultOptions().Policy()

		require.NoError(t, err)
		assert.Equal(t, []ratelimit.LimitConfig{{Window: time.Minute, Max: 100}}, policy.Limits[ratelimit.ScopeGlobal])
		assert.Equal(t, []ratelimit.LimitConfig{{Window: time.Minute, Max: 60}}, policy.Limits[ratelimit.ScopeRead])
		assert.Equal(t, []ratelimit.LimitConfig{{Window: time.Minute, Max: 20}}, policy.Limits[ratelimit.ScopeWrite])
	})

	t.Run("rejects malformed windows", func(t *testing.T) {
		opts := defaultOptions()
		opts.ReadWindow = "soon"

		_, err := opts.Policy()

		assert.ErrorContains(t, err, "read window")
	})
}

func TestRateLimitPackage(t *testing.T) {
	t.Run("rejects unknown store backends", func(t *testing.T) {
		opts := defaultOptions()
		opts.StoreBackend = "etcd"

		_, err := do.Invoke[ratelimit.Store](newInjector(t, opts))

		assert.ErrorContains(t, err, "unknown store backend")
	})

	for _, window := range []string{"500us", "1500us", "1.0001s"} {
		t.Run("rejects window "+window, func(t *testing.T) {
			opts := defaultOptions()
			opts.GlobalWindow = window

			_, err := do.Invoke[*ratelimit.PolicyLimiter](newInjector(t, opts))

			assert.ErrorContains(t, err, ratelimit.ErrInvalidWindow.Error())
		})
	}
}

func TestHTTPPackage_MemoryBackend(t *testing.T) {
	opts := defaultOptions()
	opts.WriteMax = 100
	router := newRouter(t, newInjector(t, opts))

	t.Run("health reports the local store", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"backend":"memory"`)
	})

	t.Run("hits are limited per identity", func(t *testing.T) {
		for range 60 {
			require.Equal(t, http.StatusOK, postHit(router, `{"identity":"alice","scope":"read"}`).Code)
		}

		assert.Equal(t, http.StatusTooManyRequests, postHit(router, `{"identity":"alice","scope":"read"}`).Code)
		assert.Equal(t, http.StatusOK, postHit(router, `{"identity":"bob","scope":"read"}`).Code)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ratelimit_hits_total")
	})
}

func TestHTTPPackage_HitsAreNotLimitedPerCaller(t *testing.T) {
	opts := defaultOptions()
	router := newRouter(t, newInjector(t, opts))

	for i := range opts.WriteMax + opts.GlobalMax + 5 {
		w := postHit(router, fmt.Sprintf(`{"identity":"user-%d"}`, i))

		require.Equal(t, http.StatusOK, w.Code, "hit %d: %s", i, w.Body.String())
	}
}

func TestHTTPPackage_MetricsCountServiceHits(t *testing.T) {
	opts := defaultOptions()
	opts.ReadMax = 1
	injector := newInjector(t, opts)
	router := newRouter(t, injector)

	postHit(router, `{"identity":"dave","scope":"read"}`)
	postHit(router, `{"identity":"dave","scope":"read"}`)

	registry := do.MustInvoke[*metrics.Registry](injector)
	assert.InDelta(t, 1, testutil.ToFloat64(registry.Hits("read", "allowed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(registry.Hits("read", "exceeded")), 0)
}

func TestHTTPPackage_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	opts := defaultOptions()
	opts.StoreBackend = container.BackendRedis
	opts.RedisAddr = mr.Addr()
	opts.Audit = true
	opts.ReadMax = 2

	router := newRouter(t, newInjector(t, opts))
	body := `{"identity":"carol","scope":"read"}`

	assert.Equal(t, http.StatusOK, postHit(router, body).Code)
	assert.Equal(t, http.StatusOK, postHit(router, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, postHit(router, body).Code)

	assert.True(t, mr.Exists("test:limiter:sliding:60000:2:subject:carol:read"))
	assert.True(t, mr.Exists(audit.TopicLimitExceeded))
}
