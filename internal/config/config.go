package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" required:"true"`
	MongoURI    string `envconfig:"MONGO_URI" required:"true"`
	MongoDB     string `envconfig:"MONGO_DB" default:"research_catalog"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"minio:9000"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"research-artifacts"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// StoreTimeout bounds every call to PostgreSQL, MongoDB and MinIO.
	StoreTimeout   time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`

	DefaultPageSize int `envconfig:"DEFAULT_PAGE_SIZE" default:"20"`
	MaxPageSize     int `envconfig:"MAX_PAGE_SIZE" default:"100"`

	// FlushSchedule is a cron schedule for writing engagement to MongoDB.
	FlushSchedule string `envconfig:"FLUSH_SCHEDULE" default:"@every 30s"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("page sizes out of range: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
