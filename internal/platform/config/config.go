package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	platformstrings "soulcert/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	JWTSigningKey   string
	JWTIssuer       string
	TokenTTL        time.Duration
	TxTimeout       time.Duration
	ShutdownTimeout time.Duration
	Database        DatabaseConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
}

// DatabaseConfig selects the Postgres ledger. An empty URL keeps the ledger in memory.
type DatabaseConfig struct {
	URL          string
	AutoMigrate  bool
	MaxOpenConns int
}

// RedisConfig enables the record read cache. An empty URL disables it.
type RedisConfig struct {
	URL            string
	PoolSize       int
	MinIdleConns   int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RecordCacheTTL time.Duration
}

// KafkaConfig enables Issued event delivery to Kafka. No brokers means events
// are only logged.
type KafkaConfig struct {
	Brokers     []string
	IssuedTopic string
	ClientID    string
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getenv("SOULCERT_ADDR", ":8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		JWTSigningKey: getenv("JWT_SIGNING_KEY", devSigningKey),
		JWTIssuer:     getenv("JWT_ISSUER", "soulcert"),
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			AutoMigrate:  os.Getenv("DB_AUTO_MIGRATE") == "true",
			MaxOpenConns: 10,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     platformstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			IssuedTopic: getenv("KAFKA_ISSUED_TOPIC", "soulcert.credential.issued"),
			ClientID:    getenv("KAFKA_CLIENT_ID", "soulcert"),
		},
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 15*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.TxTimeout, err = durationEnv("TX_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.RecordCacheTTL, err = durationEnv("RECORD_CACHE_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}
	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Server{}, fmt.Errorf("DB_MAX_OPEN_CONNS: want a positive integer, got %q", v)
		}
		cfg.Database.MaxOpenConns = n
	}
	if cfg.Redis.URL != "" && cfg.Database.URL == "" {
		// The in-memory ledger restarts its record IDs at 0 while Redis keeps
		// views and burn tombstones for the previous process.
		return Server{}, errors.New("REDIS_URL requires DATABASE_URL: the record cache needs a durable ledger")
	}
	return cfg, nil
}

// UsesDevSigningKey reports whether tokens are signed with the built-in key.
func (s Server) UsesDevSigningKey() bool {
	return s.JWTSigningKey == devSigningKey
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}
