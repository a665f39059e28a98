package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAdaptFormatsMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.Adapt(zap.New(core))

	logger.Debug("debug %d", 1)
	logger.Info("info %s", "two")
	logger.Warn("warn %v", true)
	logger.Error("error %q", "four")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "debug 1", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "info two", entries[1].Message)
	assert.Equal(t, "warn true", entries[2].Message)
	assert.Equal(t, `error "four"`, entries[3].Message)
}

func TestAdaptNil(t *testing.T) {
	assert.IsType(t, identity.NopLogger{}, logging.Adapt(nil))
	assert.IsType(t, identity.NopLogger{}, logging.Named(nil, "x"))
}

func TestNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logging.Named(zap.New(core), "auth").Info("hello")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "auth", entries[0].LoggerName)
}

func TestNewLevels(t *testing.T) {
	l, err := logging.New("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = logging.New("nonsense", false)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestActivitySink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := logging.NewActivitySink(zap.New(core))

	err := sink.Record(context.Background(), identity.ActivityEvent{
		EventType:  identity.ActivityEventSweep,
		Actor:      identity.SystemActor,
		Metadata:   map[string]any{"deleted_count": int64(2)},
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("activity").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, string(identity.ActivityEventSweep), fields["verb"])
	assert.Equal(t, "system", fields["actor_id"])
}
