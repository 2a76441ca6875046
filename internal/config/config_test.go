package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://catalog@localhost/catalog")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "research_catalog", cfg.MongoDB)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 20, cfg.DefaultPageSize)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, "@every 30s", cfg.FlushSchedule)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.False(t, cfg.MinioUseSSL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://x")
	t.Setenv("MONGO_URI", "mongodb://x")
	t.Setenv("STORE_TIMEOUT", "250ms")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("CORS_ORIGINS", "https://catalog.example.ng")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, []string{"https://catalog.example.ng"}, cfg.CORSOrigins)
}

func TestLoadRequiresStores(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	os.Unsetenv("POSTGRES_DSN")
	t.Setenv("MONGO_URI", "mongodb://x")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.StoreTimeout = 0 }},
		{"max below default", func(c *Config) { c.MaxPageSize = 5 }},
		{"zero page", func(c *Config) { c.DefaultPageSize = 0 }},
		{"zero upload", func(c *Config) { c.MaxUploadBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{StoreTimeout: time.Second, DefaultPageSize: 20, MaxPageSize: 100, MaxUploadBytes: 1}
			require.NoError(t, c.Validate())
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
