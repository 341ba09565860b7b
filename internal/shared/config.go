package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string

	RedisAddr string
	RedisDB   int
	RedisPass string

	QueueStream   string
	QueueGroup    string
	QueueConsumer string
	QueueBlock    time.Duration
	// QueueReclaim is the min idle time before a pending delivery abandoned
	// by a dead consumer is claimed back for redelivery.
	QueueReclaim time.Duration

	ClassifierBase    string
	ClassifierKey     string
	ClassifierRPS     int
	ClassifierTimeout time.Duration

	// MaxDeliveries caps deliveries per task; 0 means unbounded (a transient
	// failure is never silently dropped).
	MaxDeliveries int

	CacheTTL time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),

		RedisAddr: env("REDIS_ADDR", "localhost:6379"),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),

		QueueStream:   env("QUEUE_STREAM", "moderation:tasks"),
		QueueGroup:    env("QUEUE_GROUP", "moderators"),
		QueueConsumer: env("QUEUE_CONSUMER", hostname()),
		QueueBlock:    time.Duration(atoi("QUEUE_BLOCK_SECONDS", 5)) * time.Second,
		QueueReclaim:  time.Duration(atoi("QUEUE_RECLAIM_SECONDS", 60)) * time.Second,

		ClassifierBase:    env("CLASSIFIER_BASE_URL", "http://localhost:8090"),
		ClassifierKey:     env("CLASSIFIER_API_KEY", ""),
		ClassifierRPS:     atoi("CLASSIFIER_RPS", 5),
		ClassifierTimeout: time.Duration(atoi("CLASSIFIER_TIMEOUT_SECONDS", 20)) * time.Second,

		MaxDeliveries: atoi("MOD_MAX_DELIVERIES", 0),

		CacheTTL: time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.ClassifierKey == "" {
		log.Warn().Msg("CLASSIFIER_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "worker"
}
