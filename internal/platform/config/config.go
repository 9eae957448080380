package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr          string
	JWTSigningKey string

	// AdminAddress is the identity allowed to run registry admin operations
	// and pause/resume. RouterAddress is the identity the token ledger
	// accepts for mint/burn hooks.
	AdminAddress  string
	RouterAddress string

	// MinConfirmations gates processing of registered Bitcoin deposits.
	MinConfirmations uint32
	// MinReserveRatioBPS is the issuance floor in basis points (10000 = 1:1).
	MinReserveRatioBPS int64
	// TokenUnitsPerSatoshi converts deposit amounts to token base units.
	TokenUnitsPerSatoshi int64

	// SecondaryTokenSymbol, when set, stands up a second ledger for
	// cross-token exchanges, converted at ExchangeRate (a decimal string).
	SecondaryTokenSymbol string
	ExchangeRate         string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig holds connection settings for the durable stores. An empty
// URL means the in-memory stores are used instead.
type PostgresConfig struct {
	URL string
}

// RedisConfig holds settings for the operation-status cache. An empty URL
// disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the state-transition event stream. Empty
// brokers disable the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults. Production deployments override every secret-bearing value.
func FromEnv() Config {
	cfg := Config{
		Addr:                 getenv("ISTSI_ADDR", ":8080"),
		JWTSigningKey:        getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AdminAddress:         getenv("ISTSI_ADMIN_ADDRESS", "ad000000000000000000"),
		RouterAddress:        getenv("ISTSI_ROUTER_ADDRESS", "0e000000000000000000"),
		MinConfirmations:     uint32(getenvInt("ISTSI_MIN_CONFIRMATIONS", 3)),
		MinReserveRatioBPS:   int64(getenvInt("ISTSI_MIN_RESERVE_RATIO_BPS", 10000)),
		TokenUnitsPerSatoshi: int64(getenvInt("ISTSI_TOKEN_UNITS_PER_SATOSHI", 1)),
		SecondaryTokenSymbol: os.Getenv("ISTSI_SECONDARY_TOKEN_SYMBOL"),
		ExchangeRate:         getenv("ISTSI_EXCHANGE_RATE", "1"),
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: getenv("KAFKA_EVENTS_TOPIC", "istsi.operation-events"),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
