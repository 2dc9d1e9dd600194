package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Store       string // THREADS_STORE ("postgres", "gorm" or "sqlite", default "postgres")
	DatabaseURL string // THREADS_DATABASE_URL (required for postgres and gorm)
	SQLitePath  string // THREADS_SQLITE_PATH (default "threads.db")
	GRPCAddr    string // THREADS_GRPC_ADDR (default ":9090")
	HTTPAddr    string // THREADS_HTTP_ADDR (default ":8080")
	NATSURL     string // THREADS_NATS_URL (optional, empty = no events)
	AuthToken   string // THREADS_AUTH_TOKEN (optional, empty = auth disabled)
	LogMode     string // THREADS_LOG_MODE ("dev" or "prod", default "dev")

	// Mutation settings
	LockTimeout time.Duration // THREADS_LOCK_TIMEOUT (default 5s; 0 = wait for ctx only)

	// Cache settings
	Cache     string        // THREADS_CACHE ("redis", "lru" or "none", default "lru")
	RedisAddr string        // THREADS_REDIS_ADDR (default "localhost:6379")
	CacheTTL  time.Duration // THREADS_CACHE_TTL (default 1h)
	CacheSize int           // THREADS_CACHE_SIZE (lru entries, default 1024)

	// Sync settings
	SyncInterval   time.Duration // THREADS_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // THREADS_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // THREADS_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // THREADS_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // THREADS_SYNC_S3_KEY (default "threads/backup.jsonl")
	SyncGitRepo    string        // THREADS_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // THREADS_SYNC_GIT_FILE (default "threads.jsonl")
	SyncGitBranch  string        // THREADS_SYNC_GIT_BRANCH (default "main")
}

// LoadFile reads a dotenv file into the environment, then calls Load.
// Variables already set win over the file. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return Load()
}

func Load() (*Config, error) {
	c := &Config{
		Store:          envOrDefault("THREADS_STORE", "postgres"),
		DatabaseURL:    os.Getenv("THREADS_DATABASE_URL"),
		SQLitePath:     envOrDefault("THREADS_SQLITE_PATH", "threads.db"),
		GRPCAddr:       envOrDefault("THREADS_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("THREADS_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("THREADS_NATS_URL"),
		AuthToken:      os.Getenv("THREADS_AUTH_TOKEN"),
		LogMode:        envOrDefault("THREADS_LOG_MODE", "dev"),
		Cache:          envOrDefault("THREADS_CACHE", "lru"),
		RedisAddr:      envOrDefault("THREADS_REDIS_ADDR", "localhost:6379"),
		SyncS3Bucket:   os.Getenv("THREADS_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("THREADS_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("THREADS_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("THREADS_SYNC_S3_KEY", "threads/backup.jsonl"),
		SyncGitRepo:    os.Getenv("THREADS_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("THREADS_SYNC_GIT_FILE", "threads.jsonl"),
		SyncGitBranch:  envOrDefault("THREADS_SYNC_GIT_BRANCH", "main"),
	}

	switch c.Store {
	case "postgres", "gorm":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("THREADS_DATABASE_URL is required")
		}
	case "sqlite":
	default:
		return nil, fmt.Errorf("THREADS_STORE: unknown store %q", c.Store)
	}

	switch c.Cache {
	case "redis", "lru", "none":
	default:
		return nil, fmt.Errorf("THREADS_CACHE: unknown cache %q", c.Cache)
	}

	var err error
	if c.LockTimeout, err = durationEnv("THREADS_LOCK_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = durationEnv("THREADS_CACHE_TTL", "1h"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = durationEnv("THREADS_SYNC_INTERVAL", "0"); err != nil {
		return nil, err
	}

	size := envOrDefault("THREADS_CACHE_SIZE", "1024")
	n, err := strconv.Atoi(size)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("THREADS_CACHE_SIZE: must be a positive integer, got %q", size)
	}
	c.CacheSize = n

	return c, nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
