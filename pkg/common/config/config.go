package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	AuditPort      string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Prediction service
	PredictionBaseURL      string
	PredictionTimeout      time.Duration
	PredictionTokenURL     string
	PredictionClientID     string
	PredictionClientSecret string

	// Patient store document loaded once at startup
	PatientStorePath string

	// Cosmetic progress ticker
	ProgressTick time.Duration

	// Prediction sessions
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration
	MaxSessions          int

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	ResultCacheTTL time.Duration

	// Kafka
	KafkaBrokers      []string
	KafkaGroupID      string
	KafkaOutcomeTopic string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AuditPort:      getEnv("AUDIT_PORT", "8091"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PredictionBaseURL:      strings.TrimRight(getEnv("PREDICTION_BASE_URL", "http://localhost:8000"), "/"),
		PredictionTimeout:      getDuration("PREDICTION_TIMEOUT", 15*time.Second),
		PredictionTokenURL:     getEnv("PREDICTION_TOKEN_URL", ""),
		PredictionClientID:     getEnv("PREDICTION_CLIENT_ID", ""),
		PredictionClientSecret: getEnv("PREDICTION_CLIENT_SECRET", ""),

		PatientStorePath: getEnv("PATIENT_STORE_PATH", "data/patient_database.json"),

		ProgressTick: getDuration("PROGRESS_TICK", 25*time.Millisecond),

		SessionIdleTimeout:   getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval: getDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		MaxSessions:          getIntEnv("MAX_SESSIONS", 1000),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "riskboard"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "riskboard"),
		PostgresDB:       getEnv("POSTGRES_DB", "riskboard"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		ResultCacheTTL: getDuration("RESULT_CACHE_TTL", 30*time.Minute),

		KafkaBrokers:      getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "riskboard-audit"),
		KafkaOutcomeTopic: getEnv("KAFKA_OUTCOME_TOPIC", "prediction-outcomes"),
	}
}

// PredictionAuthEnabled reports whether client credentials are configured for
// the prediction service.
func (c *Config) PredictionAuthEnabled() bool {
	return c.PredictionTokenURL != "" && c.PredictionClientID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
