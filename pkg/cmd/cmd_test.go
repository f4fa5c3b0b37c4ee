package cmd

import (
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/custodian/pkg/notifier"
	"github.com/dukex/custodian/pkg/notifier/redis"
	"github.com/dukex/custodian/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"file://./data":                      "file",
		"./data":                             "file",
		"postgres://u:p@localhost/custody":   "postgres",
		"postgresql://u:p@localhost/custody": "postgres",
		"mysql://localhost/custody":          "file",
	}

	for url, want := range tests {
		assert.Equal(t, want, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	p, err := NewPersistence(t.Context(), testLogger(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", "", false, testLogger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("rabbitmq", "", false, testLogger())
	require.ErrorIs(t, err, ErrUnsupportedEventBus)

	_, err = NewEventBus("kafka", " , ", false, testLogger())
	require.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	n, closeFn, err := NewNotifier(t.Context(), "log", testLogger())
	require.NoError(t, err)
	assert.IsType(t, &notifier.LogNotifier{}, n)
	require.NoError(t, closeFn())

	server := miniredis.RunT(t)

	n, closeFn, err = NewNotifier(t.Context(), "redis://"+server.Addr()+"/0", testLogger())
	require.NoError(t, err)
	assert.IsType(t, &redis.Notifier{}, n)
	require.NoError(t, closeFn())
}

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(t.Context(), false)
	require.NoError(t, err)

	_, span := tracer.Start(t.Context(), "noop")
	assert.False(t, span.SpanContext().IsValid())
}
