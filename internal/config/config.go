package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Graph      GraphConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Geocoding  GeocodingConfig
	Search     SearchConfig
	Memory     MemoryConfig
	Logging    LoggingConfig
}

// PostgreSQLConfig holds the query-log database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	Enabled            bool
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// GraphConfig holds the FalkorDB connection used to run structured queries
type GraphConfig struct {
	Address      string
	Password     string
	GraphName    string
	QueryTimeout time.Duration
}

// RedisConfig holds the shared geocode cache configuration
type RedisConfig struct {
	Address    string
	Password   string
	DB         int
	GeocodeTTL time.Duration
	KeyPrefix  string
	Enabled    bool
}

// LLMConfig holds the OpenAI-compatible text generation settings
type LLMConfig struct {
	APIKey               string
	APIBase              string
	ChatModel            string
	ChatTemperature      float64
	ChatMaxTokens        int
	Stream               bool
	Timeout              int
	Enabled              bool
	UseForClassification bool
	UseForQueries        bool
	UseForAnswers        bool
}

// GeocodingConfig holds the geocoding provider settings
type GeocodingConfig struct {
	BaseURL   string
	UserAgent string
	Locality  string
	Timeout   time.Duration
	CacheSize int
}

// SearchConfig holds retrieval tuning constants
type SearchConfig struct {
	DefaultThresholdMiles  float64
	ExpandedThresholdMiles float64
	SpecificityLimit       int
	MaxResults             int
	DefaultLatitude        float64
	DefaultLongitude       float64
	ReferenceFile          string
	GazetteerFile          string
}

// MemoryConfig holds conversation memory settings
type MemoryConfig struct {
	HistorySize int
	SessionTTL  time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "orgfinder"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 2),
			Enabled:            getEnvAsBool("PG_ENABLED", true),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Graph: GraphConfig{
			Address:      getEnv("FALKORDB_ADDR", "localhost:6379"),
			Password:     getEnv("FALKORDB_PASSWORD", ""),
			GraphName:    getEnv("FALKORDB_GRAPH", "organizations"),
			QueryTimeout: getEnvAsDuration("GRAPH_QUERY_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Address:    getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			GeocodeTTL: getEnvAsDuration("REDIS_GEOCODE_TTL", 30*24*time.Hour),
			KeyPrefix:  getEnv("REDIS_KEY_PREFIX", "orgfinder:geocode:"),
			Enabled:    getEnv("REDIS_ADDR", "") != "",
		},
		LLM: LLMConfig{
			APIKey:               getEnv("LLM_API_KEY", getEnv("GROQ_API_KEY", "")),
			APIBase:              getEnv("LLM_API_BASE", "https://api.groq.com/openai/v1"),
			ChatModel:            getEnv("LLM_CHAT_MODEL", "llama-3.3-70b-versatile"),
			ChatTemperature:      getEnvAsFloat("LLM_CHAT_TEMPERATURE", 0),
			ChatMaxTokens:        getEnvAsInt("LLM_CHAT_MAX_TOKENS", 1024),
			Stream:               getEnvAsBool("LLM_STREAM", true),
			Timeout:              getEnvAsInt("LLM_TIMEOUT", 30),
			Enabled:              getEnv("LLM_API_KEY", getEnv("GROQ_API_KEY", "")) != "",
			UseForClassification: getEnvAsBool("LLM_CLASSIFY", true),
			UseForQueries:        getEnvAsBool("LLM_WRITE_QUERIES", false),
			UseForAnswers:        getEnvAsBool("LLM_WRITE_ANSWERS", true),
		},
		Geocoding: GeocodingConfig{
			BaseURL:   getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", "organization_finder_app"),
			Locality:  getEnv("GEOCODER_LOCALITY", ", Philadelphia, PA"),
			Timeout:   getEnvAsDuration("GEOCODER_TIMEOUT", 10*time.Second),
			CacheSize: getEnvAsInt("GEOCODER_CACHE_SIZE", 256),
		},
		Search: SearchConfig{
			DefaultThresholdMiles:  getEnvAsFloat("SEARCH_DEFAULT_THRESHOLD_MILES", 0.8),
			ExpandedThresholdMiles: getEnvAsFloat("SEARCH_EXPANDED_THRESHOLD_MILES", 1.25),
			SpecificityLimit:       getEnvAsInt("SEARCH_SPECIFICITY_LIMIT", 5),
			MaxResults:             getEnvAsInt("SEARCH_MAX_RESULTS", 10),
			DefaultLatitude:        getEnvAsFloat("SEARCH_DEFAULT_LATITUDE", 39.952335),
			DefaultLongitude:       getEnvAsFloat("SEARCH_DEFAULT_LONGITUDE", -75.163789),
			ReferenceFile:          getEnv("SEARCH_REFERENCE_FILE", ""),
			GazetteerFile:          getEnv("SEARCH_GAZETTEER_FILE", ""),
		},
		Memory: MemoryConfig{
			HistorySize: getEnvAsInt("MEMORY_HISTORY_SIZE", 5),
			SessionTTL:  getEnvAsDuration("MEMORY_SESSION_TTL", 2*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Search.ExpandedThresholdMiles <= 0 {
		return nil, fmt.Errorf("SEARCH_EXPANDED_THRESHOLD_MILES must be positive")
	}
	if cfg.Memory.HistorySize <= 0 {
		return nil, fmt.Errorf("MEMORY_HISTORY_SIZE must be positive")
	}

	return cfg, nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}
