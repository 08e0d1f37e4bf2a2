package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://opensky-network.org/api", cfg.FeedBaseURL)
	assert.Empty(t, cfg.FeedToken)
	assert.Equal(t, 15*time.Second, cfg.FeedTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 60.0, cfg.ClusterRadiusPx)
	assert.Equal(t, 18.0, cfg.MaxZoom)
	assert.Equal(t, 128, cfg.AggCacheSize)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "flight-snapshots", cfg.KafkaSinkTopic)
	assert.False(t, cfg.PublishEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("FEED_BASE_URL", "http://localhost:9999/api")
	t.Setenv("FEED_TOKEN", "tok-123")
	t.Setenv("FEED_TIMEOUT", "5s")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_FILE", "/var/log/flightmap.log")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CLUSTER_RADIUS_PX", "80")
	t.Setenv("MAX_ZOOM", "20")
	t.Setenv("AGG_CACHE_SIZE", "256")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-snapshots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/api", cfg.FeedBaseURL)
	assert.Equal(t, "tok-123", cfg.FeedToken)
	assert.Equal(t, 5*time.Second, cfg.FeedTimeout)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/var/log/flightmap.log", cfg.LogFile)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 80.0, cfg.ClusterRadiusPx)
	assert.Equal(t, 20.0, cfg.MaxZoom)
	assert.Equal(t, 256, cfg.AggCacheSize)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-snapshots", cfg.KafkaSinkTopic)
	assert.True(t, cfg.PublishEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad feed timeout", "FEED_TIMEOUT", "soon"},
		{"negative feed timeout", "FEED_TIMEOUT", "-5s"},
		{"bad shutdown timeout", "SHUTDOWN_TIMEOUT", "10"},
		{"bad cluster radius", "CLUSTER_RADIUS_PX", "wide"},
		{"zero cluster radius", "CLUSTER_RADIUS_PX", "0"},
		{"bad max zoom", "MAX_ZOOM", "deep"},
		{"bad cache size", "AGG_CACHE_SIZE", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
