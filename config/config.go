package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Blob       BlobConfig       `json:"blob"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Chat       ChatConfig       `json:"chat"`
	Auth       AuthConfig       `json:"auth"`
	Processing ProcessingConfig `json:"processing"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
}

type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

// RedisConfig holds configuration for the retrieval-result cache
type RedisConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Password    string `json:"password"`
	DB          int    `json:"db"`
	CacheTTL    int    `json:"cache_ttl"` // TTL for retrieval cache entries in seconds
	EnableCache bool   `json:"enable_cache"`
}

// BlobConfig holds configuration for the S3-compatible object store
// where uploaded source files land before processing
type BlobConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// EmbeddingConfig covers both embedding backends: the OpenAI-compatible
// API (1536-dim) and the local embedding server (384-dim)
type EmbeddingConfig struct {
	OpenAIBaseURL string `json:"openai_base_url"`
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIModel   string `json:"openai_model"`
	LocalBaseURL  string `json:"local_base_url"`
	LocalModel    string `json:"local_model"`
	Timeout       int    `json:"timeout"`      // SDK timeout per batch, seconds
	HardTimeout   int    `json:"hard_timeout"` // outer deadline per batch, seconds
	BatchSize     int    `json:"batch_size"`
}

// ChatConfig holds configuration for the chat completion API
type ChatConfig struct {
	BaseURL          string `json:"base_url"`
	APIKey           string `json:"api_key"`
	StandardModel    string `json:"standard_model"`
	ReasoningModel   string `json:"reasoning_model"`
	SummaryTimeout   int    `json:"summary_timeout"`    // seconds
	StreamIdleTimeout int   `json:"stream_idle_timeout"` // seconds between tokens
}

type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	JWKSURL        string   `json:"jwks_url"`
	AllowedIssuers []string `json:"allowed_issuers"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// ProcessingConfig holds the ingestion pipeline knobs
type ProcessingConfig struct {
	MaxConcurrent     int    `json:"max_concurrent"`
	StuckThreshold    int    `json:"stuck_threshold"`    // seconds before a processing row counts as stalled
	RetryAfter        int    `json:"retry_after"`        // seconds advertised when all slots are busy
	ExtractTimeout    int    `json:"extract_timeout"`    // seconds for the PDF extraction phase
	LogFile           string `json:"log_file"`           // NDJSON processing log path
	BlobGracePeriod   int    `json:"blob_grace_period"`  // seconds before orphaned blobs are collected
}

// RetrievalConfig holds the search-side knobs
type RetrievalConfig struct {
	SystemChunkLimit int     `json:"system_chunk_limit"`
	SimilarityFloor  float64 `json:"similarity_floor"`
	RefreshPeriod    int     `json:"refresh_period"` // registry refresh period, seconds
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 300),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "ragdock"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "ragdock"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnvAsInt("REDIS_PORT", 6379),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			CacheTTL:    getEnvAsInt("REDIS_CACHE_TTL", 600),
			EnableCache: getEnvAsBool("REDIS_ENABLE_CACHE", true),
		},
		Blob: BlobConfig{
			Endpoint:  getEnv("BLOB_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey: getEnv("BLOB_SECRET_KEY", ""),
			Bucket:    getEnv("BLOB_BUCKET", "ragdock-uploads"),
			UseSSL:    getEnvAsBool("BLOB_USE_SSL", false),
		},
		Embedding: EmbeddingConfig{
			OpenAIBaseURL: getEnv("EMBEDDING_OPENAI_BASE_URL", "https://api.openai.com"),
			OpenAIAPIKey:  getEnv("EMBEDDING_OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("EMBEDDING_OPENAI_MODEL", "text-embedding-3-small"),
			LocalBaseURL:  getEnv("EMBEDDING_LOCAL_BASE_URL", "http://localhost:8090"),
			LocalModel:    getEnv("EMBEDDING_LOCAL_MODEL", "all-MiniLM-L6-v2"),
			Timeout:       getEnvAsInt("EMBEDDING_TIMEOUT", 30),
			HardTimeout:   getEnvAsInt("EMBEDDING_HARD_TIMEOUT", 45),
			BatchSize:     getEnvAsInt("EMBEDDING_BATCH_SIZE", 50),
		},
		Chat: ChatConfig{
			BaseURL:           getEnv("CHAT_BASE_URL", "https://api.x.ai"),
			APIKey:            getEnv("CHAT_API_KEY", ""),
			StandardModel:     getEnv("CHAT_STANDARD_MODEL", "grok-3-mini"),
			ReasoningModel:    getEnv("CHAT_REASONING_MODEL", "grok-3"),
			SummaryTimeout:    getEnvAsInt("CHAT_SUMMARY_TIMEOUT", 60),
			StreamIdleTimeout: getEnvAsInt("CHAT_STREAM_IDLE_TIMEOUT", 30),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWKSURL:        getEnv("JWKS_URL", ""),
			AllowedIssuers: getEnvAsSlice("JWT_ALLOWED_ISSUERS", nil),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Processing: ProcessingConfig{
			MaxConcurrent:   getEnvAsInt("MAX_CONCURRENT_PROCESSING", 5),
			StuckThreshold:  getEnvAsInt("STUCK_THRESHOLD", 300),
			RetryAfter:      getEnvAsInt("PROCESSING_RETRY_AFTER", 30),
			ExtractTimeout:  getEnvAsInt("EXTRACT_TIMEOUT", 120),
			LogFile:         getEnv("PROCESSING_LOG_FILE", "processing.log"),
			BlobGracePeriod: getEnvAsInt("BLOB_GRACE_PERIOD", 3600),
		},
		Retrieval: RetrievalConfig{
			SystemChunkLimit: getEnvAsInt("SYSTEM_CHUNK_LIMIT", 50),
			SimilarityFloor:  getEnvAsFloat("SIMILARITY_FLOOR", 0.3),
			RefreshPeriod:    getEnvAsInt("REGISTRY_REFRESH_PERIOD", 120),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) RegistryRefreshPeriod() time.Duration {
	return time.Duration(c.Retrieval.RefreshPeriod) * time.Second
}

func (c *Config) StuckThreshold() time.Duration {
	return time.Duration(c.Processing.StuckThreshold) * time.Second
}

func validateConfig(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}

	if config.Auth.JWTSecret == "" && config.Auth.JWKSURL == "" {
		return fmt.Errorf("either JWT_SECRET or JWKS_URL must be set")
	}

	if config.Embedding.OpenAIAPIKey == "" {
		return fmt.Errorf("embedding API key is required (EMBEDDING_OPENAI_API_KEY)")
	}

	if config.Chat.APIKey == "" {
		return fmt.Errorf("chat API key is required (CHAT_API_KEY)")
	}

	if config.Processing.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_PROCESSING must be at least 1")
	}

	if config.Retrieval.SystemChunkLimit < 1 || config.Retrieval.SystemChunkLimit > 200 {
		return fmt.Errorf("SYSTEM_CHUNK_LIMIT must be between 1 and 200")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
