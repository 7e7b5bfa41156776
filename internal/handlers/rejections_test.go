package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/ratelimiter/internal/handlers"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s *stubCounter) CountByIdentity(_ context.Context, identity string) (int64, error) {
	return s.counts[identity], s.err
}

func getRejections(counter handlers.RejectionCounter, identity string) *httptest.ResponseRecorder {
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	handlers.RegisterRejectionRoutes(api, handlers.NewRejectionHandler(counter, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/rejections/"+identity, nil))

	return w
}

func TestRejectionHandler_CountRejections(t *testing.T) {
	t.Run("returns the persisted count", func(t *testing.T) {
		w := getRejections(&stubCounter{counts: map[string]int64{"alice": 3}}, "alice")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"identity":"alice"`)
		assert.Contains(t, w.Body.String(), `"rejections":3`)
	})

	t.Run("returns zero for unknown identities", func(t *testing.T) {
		w := getRejections(&stubCounter{}, "nobody")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"rejections":0`)
	})

	t.Run("maps store failures to 503", func(t *testing.T) {
		w := getRejections(&stubCounter{err: errors.New("connection reset")}, "alice")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
