package config

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestNew(t *testing.T) {
	c, err := New()
	assert.NoError(t, err)
	assert.NoError(t, c.Validate())

	assert.Equal(t, "data", c.DataDir)
	assert.Equal(t, 3601, c.Samples)
	assert.Equal(t, CacheMemory, c.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379/0", c.Cache.RedisURL)
	assert.Equal(t, time.Duration(0), c.Cache.TTL)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "cubic", c.Server.DefaultMethod)
	assert.Equal(t, 0, len(c.Server.TrustedProxies))
	assert.Equal(t, "tmp", c.Acquire.StagingDir)
	assert.Equal(t, "elevation-tiles-prod", c.Acquire.Bucket)
	assert.Equal(t, "skadi", c.Acquire.Prefix)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{name: "samples", modify: func(c *Config) { c.Samples = 1000 }},
		{name: "data_dir", modify: func(c *Config) { c.DataDir = "" }},
		{name: "cache_backend", modify: func(c *Config) { c.Cache.Backend = "memcached" }},
		{name: "redis_url", modify: func(c *Config) { c.Cache.Backend = CacheRedis; c.Cache.RedisURL = "" }},
		{name: "method", modify: func(c *Config) { c.Server.DefaultMethod = "spline" }},
		{name: "log_level", modify: func(c *Config) { c.LogLevel = "verbose" }},
		{name: "download_workers", modify: func(c *Config) { c.Acquire.DownloadWorkers = 17 }},
		{name: "trusted_proxies", modify: func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "proxy.local"} }},
		{name: "endpoint", modify: func(c *Config) { c.Acquire.Endpoint = "not a url" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New()
			assert.NoError(t, err)
			tc.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	c, err := New()
	assert.NoError(t, err)

	var buf bytes.Buffer
	c.LogFormat = "json"
	c.LogLevel = "warn"
	logger := c.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.False(t, strings.Contains(buf.String(), "hidden"))
	assert.True(t, strings.Contains(buf.String(), `"msg":"shown"`))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}
