package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, grouped by collaborator.
// Empty DSNs and URLs select the in-memory or logging implementation.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	RabbitMQ RabbitMQConfig
	MinIO    MinIOConfig
	Request  RequestConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AdminTokenHash string
	CORSOrigins    []string
	RateLimit      int
	RateWindow     time.Duration
	ShutdownGrace  time.Duration
}

type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	TxTimeout    time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	AuditTopic     string
	RelayInterval  time.Duration
	RelayBatchSize int
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLExpiry time.Duration
}

// RequestConfig holds lifecycle policy knobs.
type RequestConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr: envString("TRANSPLANT_ADDR", ":8080"),
			// Use a default for development - should be overridden in production
			JWTSigningKey:  envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:      envString("JWT_ISSUER", "transplant"),
			JWTAudience:    envString("JWT_AUDIENCE", "transplant-api"),
			AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
			CORSOrigins:    envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimit:      envInt("RATE_LIMIT_REQUESTS", 100),
			RateWindow:     envDuration("RATE_LIMIT_WINDOW", time.Minute),
			ShutdownGrace:  envDuration("SHUTDOWN_GRACE", 15*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 20),
			TxTimeout:    envDuration("DATABASE_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        envList("KAFKA_BROKERS", nil),
			AuditTopic:     envString("KAFKA_AUDIT_TOPIC", "transplant.audit"),
			RelayInterval:  envDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
			RelayBatchSize: envInt("OUTBOX_RELAY_BATCH", 100),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Exchange: envString("RABBITMQ_EXCHANGE", "notifications"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envString("MINIO_BUCKET", "donor-confidential"),
			Region:    envString("MINIO_REGION", "us-east-1"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
			URLExpiry: envDuration("MINIO_URL_EXPIRY", 15*time.Minute),
		},
		Request: RequestConfig{
			DefaultTTL:    envDuration("REQUEST_DEFAULT_TTL", 30*24*time.Hour),
			SweepInterval: envDuration("SLA_SWEEP_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
