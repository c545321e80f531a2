package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Both processes (consumer and gateway) share this struct; each reads the
// subset it needs. Every field has a sensible default; only DATABASE_URL
// is required, and only by the consumer.
type Config struct {
	// Server (gateway and the consumer's ops endpoint)
	HTTPPort        string
	ShutdownTimeout time.Duration

	// Database (consumer only)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Redis: work queue stream and pub/sub channel
	RedisAddr     string
	RedisPassword string
	StreamKey     string
	GroupName     string
	ClaimBlock    time.Duration

	// Generation service
	GenerationURL     string
	GenerationTimeout time.Duration
	AnswerVariants    int
	GenerationRate    int // calls per second to the generation service

	// SSE gateway
	KeepAliveInterval time.Duration
}

// Load reads configuration for the stream consumer. DATABASE_URL must be set.
func Load() (*Config, error) {
	cfg := loadCommon()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadGateway reads configuration for the SSE gateway, which has no
// database dependency.
func LoadGateway() (*Config, error) {
	return loadCommon(), nil
}

func loadCommon() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "4000"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DBMaxConns: int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns: int32(getInt("DB_MIN_CONNS", 2)),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		StreamKey:     getEnv("STREAM_KEY", "ai_gen_answers"),
		GroupName:     getEnv("GROUP_NAME", "ai_gen_answers_group"),
		ClaimBlock:    getDuration("CLAIM_BLOCK", 5*time.Second),

		GenerationURL:     getEnv("GENERATION_URL", "http://llm-api:7000/"),
		GenerationTimeout: getDuration("GEN_TIMEOUT", 60*time.Second),
		AnswerVariants:    getInt("ANSWER_VARIANTS", 3),
		GenerationRate:    getInt("GEN_RATE_LIMIT", 10),

		KeepAliveInterval: getDuration("KEEPALIVE_INTERVAL", 15*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
