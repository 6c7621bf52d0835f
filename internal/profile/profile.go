package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration used to start leodock.
type Profile struct {
	// Embedding service (OpenAI-compatible /embeddings endpoint).
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingDimensions int           // 0 adopts the dimension of the first stored vector
	EmbeddingTimeout    time.Duration // per attempt
	EmbeddingBackoff    time.Duration // pause before the single retry
	EmbeddingRateLimit  float64       // requests per second, 0 disables limiting

	// Backfill worker pool.
	BackfillWorkers    int
	BackfillQueueSize  int
	BackfillJobTimeout time.Duration

	// Query vector cache used by semantic search.
	QueryCacheSize int
	QueryCacheTTL  time.Duration

	Mode    string
	Addr    string
	Data    string
	Driver  string
	DSN     string
	Version string
	Port    int
}

const (
	DefaultEmbeddingBaseURL = "http://127.0.0.1:1234/v1"
	DefaultEmbeddingModel   = "text-embedding-nomic-embed-text-v1.5-embedding"
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("invalid number in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

// FromEnv loads the embedding, backfill and cache settings from LEODOCK_* variables.
func (p *Profile) FromEnv() {
	p.EmbeddingBaseURL = getEnvOrDefault("LEODOCK_EMBEDDING_BASE_URL", DefaultEmbeddingBaseURL)
	p.EmbeddingModel = getEnvOrDefault("LEODOCK_EMBEDDING_MODEL", DefaultEmbeddingModel)
	p.EmbeddingAPIKey = getEnvOrDefault("LEODOCK_EMBEDDING_API_KEY", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("LEODOCK_EMBEDDING_DIMENSIONS", 0)
	p.EmbeddingTimeout = getEnvOrDefaultDuration("LEODOCK_EMBEDDING_TIMEOUT", 10*time.Second)
	p.EmbeddingBackoff = getEnvOrDefaultDuration("LEODOCK_EMBEDDING_RETRY_BACKOFF", 250*time.Millisecond)
	p.EmbeddingRateLimit = getEnvOrDefaultFloat("LEODOCK_EMBEDDING_RATE_LIMIT", 0)

	p.BackfillWorkers = getEnvOrDefaultInt("LEODOCK_BACKFILL_WORKERS", 4)
	p.BackfillQueueSize = getEnvOrDefaultInt("LEODOCK_BACKFILL_QUEUE_SIZE", 256)
	p.BackfillJobTimeout = getEnvOrDefaultDuration("LEODOCK_BACKFILL_JOB_TIMEOUT", 30*time.Second)

	p.QueryCacheSize = getEnvOrDefaultInt("LEODOCK_QUERY_CACHE_SIZE", 512)
	p.QueryCacheTTL = getEnvOrDefaultDuration("LEODOCK_QUERY_CACHE_TTL", 10*time.Minute)
}

func ensureDataDir(dataDir string) (string, error) {
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if err := os.MkdirAll(dataDir, 0o770); err != nil {
		return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Data == "" {
		p.Data = "data"
	}

	dataDir, err := ensureDataDir(p.Data)
	if err != nil {
		slog.Error("failed to prepare data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("leodock_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.EmbeddingDimensions < 0 {
		return errors.Errorf("invalid embedding dimensions: %d", p.EmbeddingDimensions)
	}
	if p.BackfillWorkers <= 0 {
		p.BackfillWorkers = 1
	}
	if p.BackfillQueueSize <= 0 {
		p.BackfillQueueSize = 1
	}
	return nil
}
