package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Matching  MatchingConfig
	Gemini    GeminiConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	MigrationsDir  string
	RequestTimeout int // in seconds
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	Schema       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   int // in seconds
}

type CORSConfig struct {
	AllowedOrigins []string
}

// MatchingConfig tunes candidate selection
type MatchingConfig struct {
	DefaultTopK        int
	ActiveOnly         bool
	StrictTradeOverlap bool
}

// GeminiConfig enables the semantic matcher when APIKey is set
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout int // in seconds
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "")
	viper.SetDefault("MIGRATIONS_DIR", "migrations")
	viper.SetDefault("REQUEST_TIMEOUT", 60)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", 60)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("MATCHING_DEFAULT_TOP_K", 5)
	viper.SetDefault("MATCHING_ACTIVE_ONLY", true)
	viper.SetDefault("MATCHING_STRICT_TRADE_OVERLAP", false)
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	viper.SetDefault("GEMINI_TIMEOUT", 20)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			MigrationsDir:  viper.GetString("MIGRATIONS_DIR"),
			RequestTimeout: viper.GetInt("REQUEST_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Database:     viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			SSLMode:      viper.GetString("DB_SSLMODE"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   viper.GetInt("RATE_LIMIT_WINDOW"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Matching: MatchingConfig{
			DefaultTopK:        viper.GetInt("MATCHING_DEFAULT_TOP_K"),
			ActiveOnly:         viper.GetBool("MATCHING_ACTIVE_ONLY"),
			StrictTradeOverlap: viper.GetBool("MATCHING_STRICT_TRADE_OVERLAP"),
		},
		Gemini: GeminiConfig{
			APIKey:  viper.GetString("GEMINI_API_KEY"),
			Model:   viper.GetString("GEMINI_MODEL"),
			Timeout: viper.GetInt("GEMINI_TIMEOUT"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
