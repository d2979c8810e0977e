package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewParsesLevel(t *testing.T) {
	log := New("warn", "production")
	assert.False(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.WarnLevel))

	fallback := New("not-a-level", "test")
	assert.True(t, fallback.Desugar().Core().Enabled(zapcore.InfoLevel))
}

func TestKeyValueHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewLogger(zap.New(core))

	log.With("component", "dispatcher").Info("signal dispatched", "affected_users", 2)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "signal dispatched", entries[0].Message)
		fields := entries[0].ContextMap()
		assert.Equal(t, "dispatcher", fields["component"])
		assert.EqualValues(t, 2, fields["affected_users"])
	}
}
