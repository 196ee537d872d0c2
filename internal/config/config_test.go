package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "/socket", cfg.SocketPath)
	assert.Equal(t, 50, cfg.NotificationCap)
	assert.Equal(t, 3*time.Second, cfg.ToastDuration)
	assert.Equal(t, 5*time.Second, cfg.BannerDuration)
	assert.Zero(t, cfg.HTTPTimeout)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "livedash", cfg.Tracing.ServiceName)
}

func TestFromEnv_Tracing(t *testing.T) {
	t.Setenv("PUBSUB_TRACING_ENABLED", "true")
	t.Setenv("PUBSUB_TRACING_SERVICE_NAME", "dash-client")
	t.Setenv("PUBSUB_TRACING_ZIPKIN_URL", "http://zipkin:9411/api/v2/spans")
	t.Setenv("PUBSUB_TRACING_SAMPLE_RATIO", "0.25")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "dash-client", cfg.Tracing.ServiceName)
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", cfg.Tracing.ZipkinURL)
	assert.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 1e-9)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LIVEDASH_BASE_URL", "https://dash.example.com")
	t.Setenv("LIVEDASH_NOTIFICATION_CAP", "10")
	t.Setenv("LIVEDASH_TOAST_MS", "250")
	t.Setenv("DEVSERVER_OFFLINE_DEBOUNCE_MS", "1500")
	t.Setenv("DEVSERVER_BOTS_DIR", "/srv/bots")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://dash.example.com", cfg.BaseURL)
	assert.Equal(t, 10, cfg.NotificationCap)
	assert.Equal(t, 250*time.Millisecond, cfg.ToastDuration)
	assert.Equal(t, 1500*time.Millisecond, cfg.DevServer.OfflineDebounce)
	assert.Equal(t, "/srv/bots", cfg.DevServer.BotsDir)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric cap", "LIVEDASH_NOTIFICATION_CAP", "lots"},
		{"cap out of range", "LIVEDASH_NOTIFICATION_CAP", "0"},
		{"bad url", "LIVEDASH_BASE_URL", "not a url"},
		{"relative socket path", "LIVEDASH_SOCKET_PATH", "socket"},
		{"bad toast", "LIVEDASH_TOAST_MS", "soon"},
		{"bad tracing flag", "PUBSUB_TRACING_ENABLED", "maybe"},
		{"sample ratio above one", "PUBSUB_TRACING_SAMPLE_RATIO", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
