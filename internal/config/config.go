// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	FeedBaseURL string
	FeedToken   string
	FeedTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration

	// Marker aggregation defaults, overridable per request.
	ClusterRadiusPx float64
	MaxZoom         float64
	AggCacheSize    int

	// Optional Kafka snapshot sink. Publishing is enabled when brokers are set.
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// PublishEnabled reports whether the Kafka snapshot sink is configured.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	feedTimeout, err := envDuration("FEED_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	clusterRadius, err := envFloat("CLUSTER_RADIUS_PX", 60)
	if err != nil {
		return nil, err
	}

	maxZoom, err := envFloat("MAX_ZOOM", 18)
	if err != nil {
		return nil, err
	}

	cacheSize, err := envInt("AGG_CACHE_SIZE", 128)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FeedBaseURL: envOrDefault("FEED_BASE_URL", "https://opensky-network.org/api"),
		FeedToken:   os.Getenv("FEED_TOKEN"),
		FeedTimeout: feedTimeout,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,

		ClusterRadiusPx: clusterRadius,
		MaxZoom:         maxZoom,
		AggCacheSize:    cacheSize,

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "flight-snapshots"),
	}

	if cfg.FeedBaseURL == "" {
		return nil, errors.New("FEED_BASE_URL is required")
	}
	if cfg.ClusterRadiusPx <= 0 {
		return nil, errors.New("CLUSTER_RADIUS_PX must be positive")
	}
	if cfg.MaxZoom <= 0 {
		return nil, errors.New("MAX_ZOOM must be positive")
	}
	if cfg.PublishEnabled() && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_SINK_TOPIC is empty")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

// parseBrokers splits a comma-separated broker list, dropping empty entries.
func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
