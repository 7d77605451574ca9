package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds runtime settings read from the environment.
type AppConfig struct {
	Port        string
	ServiceName string
	StoreDriver string // postgres|memory

	// AI gateway
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	ChatProvider      string // openai|vertex
	ChatModel         string
	ParseModel        string
	EmbeddingModel    string
	EmbeddingDims     int
	AIMaxRetries      int
	AIRequestsPerSec  float64
	VertexProjectID   string
	VertexLocation    string
	VertexModel       string
	NarrativeTimeout  time.Duration
	QueryCacheTTL     time.Duration
	CountryCacheTTL   time.Duration
	ImportArchiveBkt  string
	ImportArchivePfx  string
	JournalTTL        time.Duration
	QueueMaxRetries   int
	QueueDeadPolicy   string // retain|delete
	WorkerEnabled     bool
	WorkerConcurrency int
	WorkerIdle        time.Duration
	WorkerBackoff     time.Duration
	WorkerItemTimeout time.Duration
	SyncCountries     bool

	// Admin API (HS256)
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:        getEnv("PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "vibematch"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		ChatProvider:     strings.ToLower(getEnv("AI_CHAT_PROVIDER", "openai")),
		ChatModel:        getEnv("AI_CHAT_MODEL", "gpt-4o-mini"),
		ParseModel:       getEnv("AI_PARSE_MODEL", "gpt-4.1-nano"),
		EmbeddingModel:   getEnv("AI_EMBEDDING_MODEL", "text-embedding-3-small"),
		VertexProjectID:  os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation:   getEnv("VERTEX_LOCATION", "us-central1"),
		VertexModel:      getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		ImportArchiveBkt: os.Getenv("IMPORT_ARCHIVE_BUCKET"),
		ImportArchivePfx: os.Getenv("IMPORT_ARCHIVE_PREFIX"),
		QueueDeadPolicy:  strings.ToLower(getEnv("QUEUE_DEAD_POLICY", "retain")),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTIssuer:        os.Getenv("JWT_ISSUER"),
		JWTAudience:      os.Getenv("JWT_AUDIENCE"),
	}

	var err error
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"EMBEDDING_DIMENSIONS", 1536, &cfg.EmbeddingDims},
		{"AI_MAX_RETRIES", 3, &cfg.AIMaxRetries},
		{"QUEUE_MAX_RETRIES", 3, &cfg.QueueMaxRetries},
		{"EMBEDDING_CONCURRENCY", 5, &cfg.WorkerConcurrency},
	}
	for _, it := range ints {
		if *it.dst, err = getInt(it.key, it.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"NARRATIVE_TIMEOUT", 30 * time.Second, &cfg.NarrativeTimeout},
		{"QUERY_CACHE_TTL", 10 * time.Minute, &cfg.QueryCacheTTL},
		{"COUNTRY_CACHE_TTL", 5 * time.Minute, &cfg.CountryCacheTTL},
		{"JOURNAL_TTL", 14 * 24 * time.Hour, &cfg.JournalTTL},
		{"EMBEDDING_IDLE_INTERVAL", 5 * time.Second, &cfg.WorkerIdle},
		{"EMBEDDING_ERROR_BACKOFF", 10 * time.Second, &cfg.WorkerBackoff},
		{"EMBEDDING_ITEM_TIMEOUT", 2 * time.Minute, &cfg.WorkerItemTimeout},
	}
	for _, it := range durations {
		if *it.dst, err = getDuration(it.key, it.def); err != nil {
			return nil, err
		}
	}

	if cfg.AIRequestsPerSec, err = getFloat("AI_REQUESTS_PER_SECOND", 0); err != nil {
		return nil, err
	}
	if cfg.WorkerEnabled, err = getBool("EMBEDDING_WORKER_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.SyncCountries, err = getBool("SYNC_COUNTRIES_AFTER_BATCH", true); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *AppConfig) Validate() error {
	if c.EmbeddingDims <= 0 || c.EmbeddingDims > 16000 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be in 1..16000, got %d", c.EmbeddingDims)
	}
	if c.QueueMaxRetries <= 0 {
		return errors.New("QUEUE_MAX_RETRIES must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return errors.New("EMBEDDING_CONCURRENCY must be positive")
	}
	switch c.QueueDeadPolicy {
	case "retain", "delete":
	default:
		return fmt.Errorf("QUEUE_DEAD_POLICY must be retain or delete, got %q", c.QueueDeadPolicy)
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	switch c.ChatProvider {
	case "openai":
	case "vertex":
		if c.VertexProjectID == "" {
			return errors.New("VERTEX_PROJECT_ID is required when AI_CHAT_PROVIDER=vertex")
		}
	default:
		return fmt.Errorf("AI_CHAT_PROVIDER must be openai or vertex, got %q", c.ChatProvider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%s: invalid non-negative number %q", key, v)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
