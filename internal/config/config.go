// Package config provides runtime configuration values for the engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the knobs for the HTTP server, storage backends and workers.
// Empty backend URLs select the in-process fallbacks.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	RabbitMQURL      string
	RabbitMQQueue    string
	NotifyQueueSize  int
	NotifyWorkers    int
	NotifyTimeout    time.Duration
	FanoutBuffer     int
	LockTimeout      time.Duration
	MaxBidRetries    int
	SchedulerTick    time.Duration
	SchedulerWorkers int
	SeedDemoData     bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// httpAddr prefers HTTP_ADDR and falls back to PORT
func httpAddr() string {
	if addr := getenv("HTTP_ADDR", ""); addr != "" {
		return addr
	}
	return ":" + getenv("PORT", "8080")
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:        httpAddr(),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:        getenv("LOG_LEVEL", "info"),

		DatabaseURL:   getenv("DATABASE_URL", ""),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       atoienv("REDIS_DB", 0),
		CacheTTL:      durenvs("CACHE_TTL_S", 300),

		RabbitMQURL:      getenv("RABBITMQ_URL", ""),
		RabbitMQQueue:    getenv("RABBITMQ_QUEUE", "auction.notifications"),
		NotifyQueueSize:  atoienv("NOTIFY_QUEUE_SIZE", 1024),
		NotifyWorkers:    atoienv("NOTIFY_WORKERS", 2),
		NotifyTimeout:    durenvms("NOTIFY_TIMEOUT_MS", 5000),
		FanoutBuffer:     atoienv("FANOUT_BUFFER", 64),
		LockTimeout:      durenvms("LOCK_TIMEOUT_MS", 2000),
		MaxBidRetries:    atoienv("MAX_BID_RETRIES", 3),
		SchedulerTick:    durenvms("SCHEDULER_INTERVAL_MS", 1000),
		SchedulerWorkers: atoienv("SCHEDULER_WORKERS", 8),
		SeedDemoData:     boolenv("SEED_DEMO_DATA", true),
	}
}
