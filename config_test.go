package xevent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.EventInheritance)
	assert.True(t, cfg.SendSubscriberExceptionEvent)
	assert.False(t, cfg.ThrowSubscriberException)
	assert.Equal(t, 10*time.Millisecond, cfg.MaxMainThreadDrain)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero drain", func(c *Config) { c.MaxMainThreadDrain = 0 }},
		{"negative observer workers", func(c *Config) { c.ObserverWorkers = -1 }},
		{"negative observer buffer", func(c *Config) { c.ObserverBufferSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())

			_, err := NewBusBuilder().WithConfig(cfg).Build()
			assert.Error(t, err)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("XEVENT_EVENT_INHERITANCE", "false")
	t.Setenv("XEVENT_THROW_SUBSCRIBER_EXCEPTION", "true")
	t.Setenv("XEVENT_MAX_MAIN_THREAD_DRAIN", "25ms")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.EventInheritance)
	assert.True(t, cfg.ThrowSubscriberException)
	assert.Equal(t, 25*time.Millisecond, cfg.MaxMainThreadDrain)
	assert.True(t, cfg.LogSubscriberExceptions, "unset variables keep their default")
	assert.Equal(t, 1024, cfg.ObserverBufferSize)
}

func TestConfigFromEnv_File(t *testing.T) {
	const key = "XEVENT_ASYNC_POOL_SIZE"
	_, had := os.LookupEnv(key)
	require.False(t, had, "%s must not be set for this test", key)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "bus.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=8\n"), 0o600))

	cfg, err := ConfigFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.AsyncPoolSize)

	_, err = ConfigFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("XEVENT_MAX_MAIN_THREAD_DRAIN", "soon")
	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestConfigFromYAML(t *testing.T) {
	cfg, err := ConfigFromYAML(strings.NewReader(`
send_no_subscriber_event: false
max_main_thread_drain: 5ms
async_pool_size: 16
`))
	require.NoError(t, err)
	assert.False(t, cfg.SendNoSubscriberEvent)
	assert.Equal(t, 5*time.Millisecond, cfg.MaxMainThreadDrain)
	assert.Equal(t, 16, cfg.AsyncPoolSize)
	assert.True(t, cfg.EventInheritance)

	cfg, err = ConfigFromYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)

	_, err = ConfigFromYAML(strings.NewReader("max_main_thread_drain: 0s\n"))
	assert.Error(t, err)
}

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xevent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("throw_subscriber_exception: true\n"), 0o600))

	cfg, err := ConfigFromFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.ThrowSubscriberException)

	_, err = ConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestThreadMode_Text(t *testing.T) {
	for _, m := range []ThreadMode{Posting, Main, MainOrdered, Background, Async} {
		text, err := m.MarshalText()
		require.NoError(t, err)

		var back ThreadMode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}

	m, err := ParseThreadMode(" MainOrdered ")
	require.NoError(t, err)
	assert.Equal(t, MainOrdered, m)

	_, err = ParseThreadMode("ui")
	assert.Error(t, err)
	assert.Equal(t, "thread_mode(9)", ThreadMode(9).String())
}
