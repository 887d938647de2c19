// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// them through the environment.
package config

import (
	"os"
	"strings"
	"time"
)

// Server captures everything the process needs at startup.
type Server struct {
	Addr            string
	DatabaseURL     string
	JWTSigningKey   string
	CatalogPath     string
	RendererKeyHash string
	Redis           RedisConfig
	Kafka           KafkaConfig
	ShutdownTimeout time.Duration
}

// RedisConfig holds connection settings for the readiness cache. An empty URL
// disables Redis and the service falls back to computing readiness on every
// call.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds broker addresses for the audit relay. No brokers means
// audit events stay in the outbox table until a relay is configured.
type KafkaConfig struct {
	Brokers []string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("ATTEST_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("ATTEST_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default, override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("ATTEST_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("ATTEST_DATABASE_URL"),
		JWTSigningKey:   jwtSigningKey,
		CatalogPath:     os.Getenv("ATTEST_CATALOG_PATH"),
		RendererKeyHash: os.Getenv("ATTEST_RENDERER_KEY_HASH"),
		Redis: RedisConfig{
			URL:          os.Getenv("ATTEST_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka:           KafkaConfig{Brokers: brokers},
		ShutdownTimeout: 10 * time.Second,
	}
}
