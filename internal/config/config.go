package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Persistence
	SQLitePath     string
	DataDir        string
	IndexSnapshot  string
	SnapshotPeriod int // minutes between vector index snapshots

	// Redis (session store + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Auth
	JWTSecret    string
	JWTExpiresIn string
	BcryptCost   int
	AdminUser    string
	AdminPass    string

	// Gemini
	GeminiAPIKey    string
	GeminiModel     string
	EmbeddingsModel string
	GeminiTier      string
	VectorDim       int

	// Ingestion
	ChunkSize    int
	ChunkOverlap int
	MaxFileSize  int64
	AllowedExts  []string

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// History retention (0 disables trimming)
	HistoryRetentionDays int

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		SQLitePath:     getEnv("SQLITE_PATH", "./data/agent.db"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		IndexSnapshot:  getEnv("INDEX_SNAPSHOT_PATH", "./data/index.snapshot"),
		SnapshotPeriod: getEnvInt("INDEX_SNAPSHOT_MINUTES", 5),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),
		AdminUser:    getEnv("ADMIN_USER", "admin"),
		AdminPass:    getEnv("ADMIN_PASS", ""),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),
		VectorDim:       getEnvInt("VECTOR_DIM", 768),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 10485760), // 10MB
		AllowedExts:  strings.Split(getEnv("ALLOWED_FILE_EXTS", ".pdf,.docx,.txt"), ","),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		HistoryRetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", 0),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	// Bad chunking parameters are a deployment error, fatal at startup.
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkSize <= cfg.ChunkOverlap {
		return nil, fmt.Errorf("invalid chunking configuration: CHUNK_SIZE=%d CHUNK_OVERLAP=%d (require size > overlap >= 0)",
			cfg.ChunkSize, cfg.ChunkOverlap)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
