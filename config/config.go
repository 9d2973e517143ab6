package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"trading-barsv1/internal/marketdata/agg"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	SQLitePath    string
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ParquetDir    string // empty disables Parquet export
	MetricsAddr   string
	APIAddr       string

	// Aggregation
	Aggregators string // comma-separated specs, e.g. "duration:5m,renko:1:2"
	NumBackend  string // "decimal" or "double"

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ParquetDir:    getEnv("PARQUET_DIR", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),

		Aggregators: getEnv("AGGREGATORS", "duration:5m,volume:1000,range:1,renko:1:2,heikinashi"),
		NumBackend:  getEnv("NUM_BACKEND", "decimal"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseAggregators builds the configured aggregators. Invalid specs are
// logged and skipped.
func (c *Config) ParseAggregators() []agg.BarAggregator {
	parts := strings.Split(c.Aggregators, ",")
	aggs := make([]agg.BarAggregator, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		a, err := agg.ParseSpec(p)
		if err != nil {
			log.Printf("[config] skipping invalid aggregator %q: %v", p, err)
			continue
		}
		if seen[a.Name()] {
			log.Printf("[config] skipping duplicate aggregator %q", p)
			continue
		}
		seen[a.Name()] = true
		aggs = append(aggs, a)
	}
	return aggs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}
