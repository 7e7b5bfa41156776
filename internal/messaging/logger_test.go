package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/serroba/ratelimiter/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	t.Run("maps levels and fields", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := messaging.NewZapLogger(zap.New(core))

		logger.Info("info", watermill.LogFields{"topic": "a"})
		logger.Debug("debug", nil)
		logger.Trace("trace", nil)
		logger.Error("error", errors.New("boom"), watermill.LogFields{"topic": "b"})

		entries := logs.All()
		require.Len(t, entries, 4)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, "a", entries[0].ContextMap()["topic"])
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
		assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
		assert.Equal(t, "boom", entries[3].ContextMap()["error"])
	})

	t.Run("with carries fields forward", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		logger := messaging.NewZapLogger(zap.New(core)).With(watermill.LogFields{"consumer": "audit"})

		logger.Info("hello", nil)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "audit", logs.All()[0].ContextMap()["consumer"])
	})
}
